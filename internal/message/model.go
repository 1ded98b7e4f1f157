// Package message stores free-text messages sent by beacons, with read receipts.
package message

import (
	"errors"
	"time"

	"github.com/onnwee/beaconads/internal/validate"
)

// Type is the media type a message refers to.
type Type string

// Message types.
const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
	TypeText  Type = "text"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeImage || t == TypeVideo || t == TypeText
}

// MaxContentLength bounds Content.
const MaxContentLength = 255

// ErrMessageNotFound is returned for unknown message ids.
var ErrMessageNotFound = errors.New("message not found")

// Message is a beacon message.
type Message struct {
	ID       string     `json:"id"`
	BeaconID string     `json:"beacon_id"`
	Content  string     `json:"content"`
	Type     Type       `json:"type"`
	SentAt   time.Time  `json:"sent_at"`
	ReadAt   *time.Time `json:"read_at"`
}

// Filter narrows List results. Since keeps messages sent at or after it.
type Filter struct {
	BeaconID string
	Since    *time.Time
}

// Matches reports whether m passes f.
func (f Filter) Matches(m *Message) bool {
	if f.BeaconID != "" && m.BeaconID != f.BeaconID {
		return false
	}
	if f.Since != nil && m.SentAt.Before(*f.Since) {
		return false
	}
	return true
}

// Normalize validates m for creation. Type defaults to text.
func (m *Message) Normalize() error {
	fe := validate.FieldErrors{}
	if m.BeaconID == "" {
		fe.Add("beacon_id", "this field is required")
	}
	content, err := validate.Name(m.Content, MaxContentLength)
	if err != nil {
		fe.Add("content", err.Error())
	}
	m.Content = content
	if m.Type == "" {
		m.Type = TypeText
	}
	if !m.Type.Valid() {
		fe.Add("type", "must be image, video or text")
	}
	return fe.Err()
}
