// Package engagement records user interactions with advertisements. There is
// at most one row per (user, advertisement, kind); repeated writes toggle that
// row instead of inserting a new one.
package engagement

import (
	"errors"
	"time"
)

// Kind is the type of interaction.
type Kind string

// Engagement kinds.
const (
	KindView  Kind = "view"
	KindLike  Kind = "like"
	KindClick Kind = "click"
	KindSave  Kind = "save"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindView, KindLike, KindClick, KindSave}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindView, KindLike, KindClick, KindSave:
		return true
	}
	return false
}

// Common errors for engagement operations.
var (
	ErrEngagementNotFound = errors.New("engagement not found")
	ErrDuplicate          = errors.New("engagement already exists")
	ErrInvalidKind        = errors.New("engagement kind must be view, like, click or save")
	ErrTooManyConflicts   = errors.New("engagement upsert kept conflicting")
	ErrInvalidReference   = errors.New("engagement user or advertisement id is malformed")
)

// Engagement is the state of one kind of interaction between a user and an ad.
// EngagedAt is set on the first transition to true and never refreshed.
type Engagement struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	AdvertisementID string     `json:"advertisement_id"`
	Kind            Kind       `json:"kind"`
	Value           bool       `json:"value"`
	EngagedAt       *time.Time `json:"engaged_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// apply sets the flag, stamping EngagedAt when it turns true for the first time.
func (e *Engagement) apply(value bool, at time.Time) {
	e.Value = value
	if value && e.EngagedAt == nil {
		t := at.UTC()
		e.EngagedAt = &t
	}
	e.UpdatedAt = at.UTC()
}
