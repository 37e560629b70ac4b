package main

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"chabaqa/backend/internal/authclient"
)

// promptCredentials asks for whichever of email and password is still empty.
func promptCredentials(email, password *string) error {
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(email))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

func promptCode() (string, error) {
	var code string
	input := huh.NewInput().
		Title("Verification code").
		CharLimit(6).
		Validate(authclient.ValidateCode).
		Value(&code)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return code, nil
}
