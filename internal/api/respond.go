package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/beaconads/internal/analytics"
	"github.com/onnwee/beaconads/internal/validate"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

// parseDateParam reads an optional YYYY-MM-DD query parameter as a UTC date.
// Invalid values are added to fe.
func parseDateParam(r *http.Request, name string, fe validate.FieldErrors) *time.Time {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil
	}
	d, err := analytics.ParseDate(s)
	if err != nil {
		fe.Add(name, "must be a date in YYYY-MM-DD format")
		return nil
	}
	return &d
}
