// Package beacon is the registry of physical BLE beacons: identity, placement,
// last reported telemetry and the explicit Active/Inactive status.
package beacon

import (
	"errors"
	"time"

	"github.com/onnwee/beaconads/internal/validate"
)

// Status is the operator-controlled beacon status.
type Status string

// Beacon statuses.
const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Value ranges.
const (
	MaxNameLength     = 255
	MinSignalStrength = -100
	MaxSignalStrength = 0
	MinBatteryLevel   = 0
	MaxBatteryLevel   = 100
)

// Common errors for beacon operations.
var (
	ErrBeaconNotFound = errors.New("beacon not found")
	ErrDuplicateName  = errors.New("beacon name already exists")
	ErrInUse          = errors.New("beacon is referenced by assignments, logs or messages")
)

// Beacon is a registered device.
type Beacon struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	LocationName   string     `json:"location_name"`
	Minor          *int       `json:"minor,omitempty"`
	Major          *int       `json:"major,omitempty"`
	SignalStrength *int       `json:"signal_strength,omitempty"`
	BatteryStatus  *int       `json:"battery_status,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Status         Status     `json:"status"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Name           *string  `json:"name"`
	LocationName   *string  `json:"location_name"`
	Minor          *int     `json:"minor"`
	Major          *int     `json:"major"`
	SignalStrength *int     `json:"signal_strength"`
	BatteryStatus  *int     `json:"battery_status"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Status         *Status  `json:"status"`
}

// Telemetry is a device health report. Both readings are required.
type Telemetry struct {
	BatteryStatus  *int `json:"battery_status"`
	SignalStrength *int `json:"signal_strength"`
}

// Location is a beacon with coordinates, as shown on the map view.
type Location struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	LocationName string  `json:"location_name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Geohash      string  `json:"geohash"`
	Status       Status  `json:"status"`
}

// Filter narrows List results.
type Filter struct {
	Search string // case-insensitive substring of location_name
	Status Status // empty = any
}

// Normalize trims and validates b in place for creation, defaulting the status
// to Inactive. It returns validate.FieldErrors on failure.
func (b *Beacon) Normalize() error {
	fe := validate.FieldErrors{}

	name, err := validate.Name(b.Name, MaxNameLength)
	if err != nil {
		fe.Add("name", err.Error())
	}
	b.Name = name

	loc, err := validate.OptionalText(b.LocationName, MaxNameLength)
	if err != nil {
		fe.Add("location_name", err.Error())
	}
	b.LocationName = loc

	if b.Status == "" {
		b.Status = StatusInactive
	}
	checkFields(fe, b.Minor, b.Major, b.SignalStrength, b.BatteryStatus, b.Latitude, b.Longitude, &b.Status)

	return fe.Err()
}

// Validate checks the fields present in u.
func (u *Update) Validate() error {
	fe := validate.FieldErrors{}
	if u.Name != nil {
		name, err := validate.Name(*u.Name, MaxNameLength)
		if err != nil {
			fe.Add("name", err.Error())
		}
		u.Name = &name
	}
	if u.LocationName != nil {
		loc, err := validate.OptionalText(*u.LocationName, MaxNameLength)
		if err != nil {
			fe.Add("location_name", err.Error())
		}
		u.LocationName = &loc
	}
	checkFields(fe, u.Minor, u.Major, u.SignalStrength, u.BatteryStatus, u.Latitude, u.Longitude, u.Status)
	return fe.Err()
}

// Apply copies the present fields of u onto b.
func (u *Update) Apply(b *Beacon) {
	if u.Name != nil {
		b.Name = *u.Name
	}
	if u.LocationName != nil {
		b.LocationName = *u.LocationName
	}
	if u.Minor != nil {
		b.Minor = u.Minor
	}
	if u.Major != nil {
		b.Major = u.Major
	}
	if u.SignalStrength != nil {
		b.SignalStrength = u.SignalStrength
	}
	if u.BatteryStatus != nil {
		b.BatteryStatus = u.BatteryStatus
	}
	if u.Latitude != nil {
		b.Latitude = u.Latitude
	}
	if u.Longitude != nil {
		b.Longitude = u.Longitude
	}
	if u.Status != nil {
		b.Status = *u.Status
	}
}

// Validate requires both readings and checks their ranges.
func (t Telemetry) Validate() error {
	fe := validate.FieldErrors{}
	if t.BatteryStatus == nil {
		fe.Add("battery_status", "required")
	}
	if t.SignalStrength == nil {
		fe.Add("signal_strength", "required")
	}
	checkFields(fe, nil, nil, t.SignalStrength, t.BatteryStatus, nil, nil, nil)
	return fe.Err()
}

func checkFields(fe validate.FieldErrors, minor, major, signal, battery *int, lat, lng *float64, status *Status) {
	if minor != nil && *minor < 0 {
		fe.Add("minor", "must be >= 0")
	}
	if major != nil && *major < 0 {
		fe.Add("major", "must be >= 0")
	}
	if signal != nil && !validate.IntRange(*signal, MinSignalStrength, MaxSignalStrength) {
		fe.Add("signal_strength", "must be between -100 and 0")
	}
	if battery != nil && !validate.IntRange(*battery, MinBatteryLevel, MaxBatteryLevel) {
		fe.Add("battery_status", "must be between 0 and 100")
	}
	if lat != nil && !validate.FloatRange(*lat, -90, 90) {
		fe.Add("latitude", "must be between -90 and 90")
	}
	if lng != nil && !validate.FloatRange(*lng, -180, 180) {
		fe.Add("longitude", "must be between -180 and 180")
	}
	if status != nil && !status.Valid() {
		fe.Add("status", "must be Active or Inactive")
	}
}
