package user

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"golang.org/x/crypto/bcrypt"
)

// SpecialCharacters lists the symbols that satisfy the special-character rule.
const SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// bcrypt rejects inputs over 72 bytes.
const maxPasswordBytes = 72

// ValidatePasswordStrength requires an upper, a lower, a digit and a special
// character in at least MinPasswordLength characters.
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return apperrors.Invalid("password", fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return apperrors.Invalid("password", fmt.Sprintf("Password must be at most %d bytes long", maxPasswordBytes))
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialCharacters, r):
			special = true
		}
	}
	switch {
	case !upper:
		return apperrors.Invalid("password", "Password must contain at least one uppercase letter")
	case !lower:
		return apperrors.Invalid("password", "Password must contain at least one lowercase letter")
	case !digit:
		return apperrors.Invalid("password", "Password must contain at least one digit")
	case !special:
		return apperrors.Invalid("password", "Password must contain at least one special character")
	}
	return nil
}

// HashPassword hashes a password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
