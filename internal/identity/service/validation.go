package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	userdomain "chabaqa/backend/internal/user/domain"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError carries per-field messages for malformed input. No backend state is touched.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address. It does not check deliverability.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func checkEmail(f fieldErrors, email string) {
	switch {
	case email == "":
		f["email"] = "Email is required"
	case !ValidEmail(email):
		f["email"] = "Invalid email address"
	}
}

func checkPassword(f fieldErrors, password string, minLen int) {
	switch {
	case password == "":
		f["password"] = "Password is required"
	case utf8.RuneCountInString(password) < minLen:
		f["password"] = fmt.Sprintf("Password must be at least %d characters", minLen)
	}
}

func checkSignupRole(f fieldErrors, role userdomain.Role) {
	if role != userdomain.RoleUser && role != userdomain.RoleCreator {
		f["role"] = "Role must be user or creator"
	}
}
