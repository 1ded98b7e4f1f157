// Package validate provides input validation helpers shared by the domain
// packages: string constraints, email and media type checks, and a field error
// collector that the API renders as a validation_error response.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // in runes; 0 = no minimum
	MaxLength      int            // in runes; 0 = no maximum
	AllowedPattern *regexp.Regexp // optional
	AllowEmpty     bool
	TrimSpace      bool
}

// String validates s and returns it, trimmed when TrimSpace is set.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Name validates a required display name of at most maxLen characters.
func Name(name string, maxLen int) (string, error) {
	return String(name, StringConstraints{MinLength: 1, MaxLength: maxLen, TrimSpace: true})
}

// OptionalText validates free text that may be empty, up to maxLen characters.
func OptionalText(text string, maxLen int) (string, error) {
	return String(text, StringConstraints{MaxLength: maxLen, AllowEmpty: true, TrimSpace: true})
}

// Username validates a login name: 3-150 characters of letters, digits, _ . -
func Username(username string) (string, error) {
	return String(username, StringConstraints{
		MinLength:      3,
		MaxLength:      150,
		AllowedPattern: usernamePattern,
		TrimSpace:      true,
	})
}

// Password checks length only; passwords are never trimmed.
func Password(password string) error {
	_, err := String(password, StringConstraints{MinLength: 8, MaxLength: 128})
	return err
}

// IntRange reports whether v lies in [min, max].
func IntRange(v, min, max int) bool {
	return v >= min && v <= max
}

// FloatRange reports whether v lies in [min, max].
func FloatRange(v, min, max float64) bool {
	return v >= min && v <= max
}
