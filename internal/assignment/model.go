// Package assignment schedules advertisements on beacons. An assignment links
// one beacon to one advertisement for an inclusive [start_date, end_date]
// window; the service answers which advertisements a beacon should broadcast
// right now and retires advertisements whose every window has closed.
package assignment

import (
	"errors"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/validate"
)

// Common errors for assignment operations.
var (
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrDuplicateAssignment = errors.New("advertisement is already assigned to this beacon")
)

// Assignment schedules an advertisement on a beacon.
type Assignment struct {
	ID              string    `json:"id"`
	BeaconID        string    `json:"beacon_id"`
	AdvertisementID string    `json:"advertisement_id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	AssignedAt      time.Time `json:"assigned_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsValidAt reports whether at lies inside the window. Both ends are inclusive.
func (a *Assignment) IsValidAt(at time.Time) bool {
	return !at.Before(a.StartDate) && !at.After(a.EndDate)
}

// Update changes the window; nil fields are left unchanged.
type Update struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Apply copies the present fields of u onto a and validates the result.
func (u *Update) Apply(a *Assignment) error {
	if u.StartDate != nil {
		a.StartDate = u.StartDate.UTC()
	}
	if u.EndDate != nil {
		a.EndDate = u.EndDate.UTC()
	}
	return checkWindow(a.StartDate, a.EndDate)
}

// Filter narrows List results. StartFrom keeps start_date >= StartFrom,
// EndUntil keeps end_date <= EndUntil.
type Filter struct {
	BeaconID        string
	AdvertisementID string
	StartFrom       *time.Time
	EndUntil        *time.Time
}

// Matches reports whether a passes f.
func (f Filter) Matches(a *Assignment) bool {
	if f.BeaconID != "" && a.BeaconID != f.BeaconID {
		return false
	}
	if f.AdvertisementID != "" && a.AdvertisementID != f.AdvertisementID {
		return false
	}
	if f.StartFrom != nil && a.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.EndUntil != nil && a.EndDate.After(*f.EndUntil) {
		return false
	}
	return true
}

// Scheduled is an assignment joined with its advertisement, as cached per beacon.
type Scheduled struct {
	AssignmentID  string                      `json:"assignment_id"`
	StartDate     time.Time                   `json:"start_date"`
	EndDate       time.Time                   `json:"end_date"`
	Advertisement advertisement.Advertisement `json:"advertisement"`
}

// IsValidAt reports whether at lies inside the scheduled window.
func (s *Scheduled) IsValidAt(at time.Time) bool {
	return !at.Before(s.StartDate) && !at.After(s.EndDate)
}

// normalize fills the default start date and validates ids and window.
func (a *Assignment) normalize(now time.Time) error {
	fe := validate.FieldErrors{}
	if a.BeaconID == "" {
		fe.Add("beacon_id", "this field is required")
	}
	if a.AdvertisementID == "" {
		fe.Add("advertisement_id", "this field is required")
	}
	if a.StartDate.IsZero() {
		a.StartDate = now
	}
	a.StartDate = a.StartDate.UTC()
	if a.EndDate.IsZero() {
		fe.Add("end_date", "this field is required")
	} else {
		a.EndDate = a.EndDate.UTC()
		if err := checkWindow(a.StartDate, a.EndDate); err != nil {
			return mergeFieldErrors(fe, err)
		}
	}
	return fe.Err()
}

func checkWindow(start, end time.Time) error {
	if !end.After(start) {
		return validate.FieldErrors{"end_date": "end date must be after start date"}
	}
	return nil
}

func mergeFieldErrors(fe validate.FieldErrors, err error) error {
	var more validate.FieldErrors
	if errors.As(err, &more) {
		for k, v := range more {
			fe.Add(k, v)
		}
		return fe.Err()
	}
	return err
}
