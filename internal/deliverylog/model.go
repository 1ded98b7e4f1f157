// Package deliverylog is the append-only record of advertisement broadcasts:
// beacon X broadcast advertisement Y at time T. Entries are never updated or
// deleted.
package deliverylog

import (
	"errors"
	"time"
)

// ErrLogNotFound is returned for unknown log ids.
var ErrLogNotFound = errors.New("delivery log entry not found")

// Log is one broadcast event.
type Log struct {
	ID              string    `json:"id"`
	BeaconID        string    `json:"beacon_id"`
	AdvertisementID string    `json:"advertisement_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// Filter narrows List results. Since keeps entries at or after the instant.
type Filter struct {
	BeaconID        string
	AdvertisementID string
	Since           *time.Time
}

// Matches reports whether l passes f.
func (f Filter) Matches(l *Log) bool {
	if f.BeaconID != "" && l.BeaconID != f.BeaconID {
		return false
	}
	if f.AdvertisementID != "" && l.AdvertisementID != f.AdvertisementID {
		return false
	}
	if f.Since != nil && l.Timestamp.Before(*f.Since) {
		return false
	}
	return true
}
