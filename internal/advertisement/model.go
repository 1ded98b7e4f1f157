// Package advertisement is the catalog of advertisement content that beacons
// broadcast.
package advertisement

import (
	"errors"
	"time"

	"github.com/onnwee/beaconads/internal/validate"
)

// MediaType is the kind of content an advertisement carries.
type MediaType string

// Media types.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaText  MediaType = "text"
)

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	return m == MediaImage || m == MediaVideo || m == MediaText
}

// MaxTitleLength bounds Title.
const MaxTitleLength = 255

// MaxContentLength bounds Content.
const MaxContentLength = 5000

// Common errors for advertisement operations.
var (
	ErrAdvertisementNotFound = errors.New("advertisement not found")
	ErrInUse                 = errors.New("advertisement is referenced by assignments, logs or engagements")
)

// Advertisement is a piece of content that can be assigned to beacons.
type Advertisement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	MediaKey  *string   `json:"media_key,omitempty"`
	MediaType MediaType `json:"media_type"`
	IsActive  bool      `json:"is_active"`
	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	MediaType *MediaType `json:"media_type"`
	IsActive  *bool      `json:"is_active"`
}

// Filter narrows List results.
type Filter struct {
	Search string // case-insensitive substring of title or content
	Active *bool
}

// Normalize trims and validates a for creation. MediaType defaults to text.
func (a *Advertisement) Normalize() error {
	fe := validate.FieldErrors{}

	title, err := validate.Name(a.Title, MaxTitleLength)
	if err != nil {
		fe.Add("title", err.Error())
	}
	a.Title = title

	content, err := validate.OptionalText(a.Content, MaxContentLength)
	if err != nil {
		fe.Add("content", err.Error())
	}
	a.Content = content

	if a.MediaType == "" {
		a.MediaType = MediaText
	}
	if !a.MediaType.Valid() {
		fe.Add("media_type", "must be image, video or text")
	}
	return fe.Err()
}

// Validate checks the fields present in u.
func (u *Update) Validate() error {
	fe := validate.FieldErrors{}
	if u.Title != nil {
		title, err := validate.Name(*u.Title, MaxTitleLength)
		if err != nil {
			fe.Add("title", err.Error())
		}
		u.Title = &title
	}
	if u.Content != nil {
		content, err := validate.OptionalText(*u.Content, MaxContentLength)
		if err != nil {
			fe.Add("content", err.Error())
		}
		u.Content = &content
	}
	if u.MediaType != nil && !u.MediaType.Valid() {
		fe.Add("media_type", "must be image, video or text")
	}
	return fe.Err()
}

// Apply copies the present fields of u onto a.
func (u *Update) Apply(a *Advertisement) {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Content != nil {
		a.Content = *u.Content
	}
	if u.MediaType != nil {
		a.MediaType = *u.MediaType
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}
}
