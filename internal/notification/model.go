// Package notification keeps per-user notifications. Creating an
// advertisement notifies every user except its creator.
package notification

import (
	"errors"
	"time"
)

// ErrNotificationNotFound is returned for unknown ids and for ids that belong
// to another user.
var ErrNotificationNotFound = errors.New("notification not found")

// Notification is one message in a user's inbox.
type Notification struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	AdvertisementID *string    `json:"advertisement_id"`
	Message         string     `json:"message"`
	IsRead          bool       `json:"is_read"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at"`
}

// Filter narrows List results to one user's inbox.
type Filter struct {
	UserID     string
	UnreadOnly bool
}

// Matches reports whether n passes f.
func (f Filter) Matches(n *Notification) bool {
	if n.UserID != f.UserID {
		return false
	}
	return !f.UnreadOnly || !n.IsRead
}

// Broadcast is one fan-out: Message goes to every user except ExcludeUserID.
type Broadcast struct {
	ExcludeUserID   string
	AdvertisementID string
	Message         string
	CreatedAt       time.Time
}

func (n *Notification) markRead(at time.Time) bool {
	if n.IsRead {
		return false
	}
	t := at.UTC()
	n.IsRead = true
	n.ReadAt = &t
	return true
}
