package domain

import (
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	passwordSpecials  = "@$!%*?&"
)

// ValidatePassword enforces the account password policy: at least eight
// characters with a lowercase letter, an uppercase letter, a digit and one of @$!%*?&.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return E(KindValidation, "password must be at least 8 characters")
	}

	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return E(KindValidation, "password must contain at least one uppercase letter, one lowercase letter, one number, and one special character")
	}
	return nil
}
