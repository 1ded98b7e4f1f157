package validate

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidEmail is returned for malformed addresses.
var ErrInvalidEmail = errors.New("invalid email format")

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates an address and returns it lowercased and trimmed.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmpty
	}
	// RFC 5321 limits
	if len(email) > 254 {
		return "", ErrStringTooLong
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	local, _, _ := strings.Cut(email, "@")
	if len(local) > 64 {
		return "", ErrStringTooLong
	}
	return email, nil
}
