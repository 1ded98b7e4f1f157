// Package idempotency stores the responses of retried write requests so a
// device that resends a POST with the same Idempotency-Key gets the first
// response back instead of creating a second record.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when no response is stored for a key.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when a response is already stored for a key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a stored response is replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a stored response for one (user, method, route, key) tuple.
type Record struct {
	Key          string    `json:"key"`
	UserID       string    `json:"user_id"`
	Method       string    `json:"method"`
	Route        string    `json:"route"`
	CreatedAt    time.Time `json:"created_at"`
	StatusCode   int       `json:"status_code"`
	ContentType  string    `json:"content_type"`
	ResponseBody string    `json:"response_body"`
	ResponseHash string    `json:"response_hash"`
}

// Scope identifies who sent a key and where. Keys from different users or
// routes never collide.
type Scope struct {
	UserID string
	Method string
	Route  string
}

// ValidateKey checks if an idempotency key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash computes a SHA256 hash of the response body.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository persists replayable responses.
type Repository interface {
	// Get returns the record stored for key in scope, or ErrKeyNotFound.
	Get(ctx context.Context, scope Scope, key string) (*Record, error)

	// Store saves a record. Returns ErrKeyExists if one is already stored.
	Store(ctx context.Context, scope Scope, record *Record) error
}
