// Package geo encodes beacon coordinates as geohashes so the map view can
// group and filter beacons by area.
package geo

import (
	"errors"
	"strings"
)

// DefaultPrecision is the geohash length attached to beacon locations.
// Seven characters is a cell of roughly 150 m, about one building.
const DefaultPrecision = 7

// MaxPrecision is the longest geohash accepted as a filter.
const MaxPrecision = 12

// ErrInvalidGeohash is returned for empty, overlong or non-base32 input.
var ErrInvalidGeohash = errors.New("invalid geohash")

// base32 is the geohash base32 alphabet. It excludes a, i, l and o.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode encodes latitude and longitude into a geohash of the given length.
// A precision below 1 uses DefaultPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= 1 << (4 - bits)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// ParsePrefix lowercases and validates a geohash used as an area filter.
func ParsePrefix(input string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" || len(lower) > MaxPrecision {
		return "", ErrInvalidGeohash
	}
	for _, c := range lower {
		if !strings.ContainsRune(base32, c) {
			return "", ErrInvalidGeohash
		}
	}
	return lower, nil
}

// Within reports whether geohash lies inside the cell named by prefix.
func Within(geohash, prefix string) bool {
	return strings.HasPrefix(geohash, prefix)
}
