package gate

import (
	"regexp"
	"strings"
)

const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@.]+$`)

// NormalizeEmail trims and lowercases raw and checks the local@domain.tld shape.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "email is required"}
	}
	if len(email) > maxEmailLength {
		return "", &ValidationError{Field: "email", Reason: "email is too long"}
	}
	if !emailPattern.MatchString(email) {
		return "", &ValidationError{Field: "email", Reason: "expected local@domain.tld"}
	}
	return email, nil
}
