// Package user manages API accounts: registration, password login and the
// emailed one-time-code password reset.
package user

import (
	"errors"
	"time"
)

// Common errors for user operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateUsername   = errors.New("username is already taken")
	ErrDuplicateEmail      = errors.New("email is already registered")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidResetCode    = errors.New("invalid or expired reset code")
	ErrInvalidPasswordHash = errors.New("invalid password hash encoding")
)

// User is an API account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetCode is a one-time password reset code.
type ResetCode struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
