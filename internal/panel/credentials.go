package panel

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const (
	// DefaultPasswordLength is the length of generated customer passwords.
	DefaultPasswordLength = 34
	// MinimumPasswordLength is the shortest password GeneratePassword produces.
	MinimumPasswordLength = 32

	passwordAlphabetConstant        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()/[]{}"
	loginSuffixConstant             = "_cp"
	maximumLoginBaseLengthConstant  = 20
	passwordLengthFieldNameConstant = "password length"
	passwordTooShortMessageConstant = "must be at least 32 characters"
)

// DeriveLogin builds a panel login from a presentable name: ASCII letters and digits only,
// lower-cased, truncated to 20 characters, with the _cp suffix. A name without usable
// characters yields the bare suffix; the panel rejects logins it cannot accept.
func DeriveLogin(name string) string {
	var builder strings.Builder
	for _, character := range name {
		if builder.Len() == maximumLoginBaseLengthConstant {
			break
		}
		if character > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(character) || unicode.IsDigit(character) {
			builder.WriteRune(unicode.ToLower(character))
		}
	}
	return builder.String() + loginSuffixConstant
}

// GeneratePassword returns a random password drawn uniformly from the panel password alphabet.
func GeneratePassword(length int) (string, error) {
	if length < MinimumPasswordLength {
		return "", InvalidInputError{FieldName: passwordLengthFieldNameConstant, Message: passwordTooShortMessageConstant}
	}

	alphabetSize := big.NewInt(int64(len(passwordAlphabetConstant)))
	password := make([]byte, length)
	for index := range password {
		position, randomError := rand.Int(rand.Reader, alphabetSize)
		if randomError != nil {
			return "", randomError
		}
		password[index] = passwordAlphabetConstant[position.Int64()]
	}
	return string(password), nil
}
