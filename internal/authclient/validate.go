package authclient

import (
	"regexp"
	"sort"
	"strings"
)

// MinPasswordLen matches the backend's registration rule.
const MinPasswordLen = 8

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError carries per-field messages for input rejected before any backend call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// ValidateCredentials checks the sign-in form. It returns nil or a *ValidationError.
func ValidateCredentials(email, password string) error {
	fields := map[string]string{}
	if msg := checkEmail(email); msg != "" {
		fields["email"] = msg
	}
	switch {
	case password == "":
		fields["password"] = "Password is required"
	case len(password) < MinPasswordLen:
		fields["password"] = "Password must be at least 8 characters"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateCode checks a second-factor code: exactly six ASCII digits.
func ValidateCode(code string) error {
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		return &ValidationError{Fields: map[string]string{"code": "Enter the 6-digit code"}}
	}
	return nil
}

func checkEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required"
	}
	if !emailPattern.MatchString(email) {
		return "Enter a valid email address"
	}
	return ""
}
