package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// PasswordValidationError carries the individual requirement failures.
// Error() stays generic so callers never leak the requirements to clients.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	return "invalid password"
}

// Frequent entries from leaked-credential lists. Matched case-insensitively.
var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password123":  true,
	"password123!": true,
	"passw0rd":     true,
	"12345678":     true,
	"123456789":    true,
	"qwerty123":    true,
	"letmein":      true,
	"welcome1":     true,
	"admin123":     true,
	"iloveyou":     true,
	"sunshine":     true,
	"trustno1":     true,
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	var failures []string

	if len(password) < MinPasswordLen {
		failures = append(failures, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		failures = append(failures, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		failures = append(failures, "must contain an uppercase letter")
	}
	if !hasLower {
		failures = append(failures, "must contain a lowercase letter")
	}
	if !hasDigit {
		failures = append(failures, "must contain a digit")
	}
	if !hasSpecial {
		failures = append(failures, "must contain a special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		failures = append(failures, "is too common")
	}

	if len(failures) > 0 {
		return &PasswordValidationError{Errors: failures}
	}
	return nil
}
