// Package analytics computes dashboard aggregates over beacons, advertisements,
// engagement, delivery logs and messages. Nothing is precomputed; every call
// reads the current state of the underlying tables.
package analytics

import (
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
)

const (
	// PopularWindow is the trailing window that view counts are taken from.
	PopularWindow = 7 * 24 * time.Hour
	// PopularLimit caps the popular-ads ranking.
	PopularLimit = 10
	// RecentLogsWindow is the window of the recent delivery log count.
	RecentLogsWindow = 24 * time.Hour
)

// DateLayout is the calendar date format of day buckets and date filters.
const DateLayout = "2006-01-02"

// DailyCount is the number of events on one UTC calendar date.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// BeaconDailyMessages is the number of messages a beacon sent on one UTC date.
type BeaconDailyMessages struct {
	BeaconID      string `json:"beacon_id"`
	BeaconName    string `json:"beacon_name"`
	Date          string `json:"date"`
	TotalMessages int    `json:"total_messages"`
}

// RankedAdvertisement is an advertisement with its view count in the window.
type RankedAdvertisement struct {
	Advertisement advertisement.Advertisement
	Score         int
}

// PopularAdvertisement is a ranked advertisement decorated with the caller's
// own interactions with it.
type PopularAdvertisement struct {
	Advertisement advertisement.Advertisement `json:"ad"`
	Score         int                         `json:"score"`
	Viewed        bool                        `json:"viewed"`
	ViewedAt      *time.Time                  `json:"viewed_at"`
	Liked         bool                        `json:"liked"`
	LikedAt       *time.Time                  `json:"liked_at"`
	Clicked       bool                        `json:"clicked"`
	ClickedAt     *time.Time                  `json:"clicked_at"`
	Saved         bool                        `json:"saved"`
	SavedAt       *time.Time                  `json:"saved_at"`
}

// LikedSaved is one advertisement a user liked, saved, or both.
type LikedSaved struct {
	AdvertisementID string     `json:"advertisement_id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Liked           bool       `json:"liked"`
	LikedAt         *time.Time `json:"liked_at"`
	Saved           bool       `json:"saved"`
	SavedAt         *time.Time `json:"saved_at"`
}

// dayOf truncates t to its UTC calendar date.
func dayOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD filter as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
