package api

import (
	"context"
	"net/http"
	"time"

	"github.com/onnwee/beaconads/internal/analytics"
	"github.com/onnwee/beaconads/internal/middleware"
	"github.com/onnwee/beaconads/internal/validate"
)

// CountResponse is a single count.
type CountResponse struct {
	Count int `json:"count"`
}

// LocationCountResponse is the number of distinct beacon locations.
type LocationCountResponse struct {
	TotalLocations int `json:"total_locations"`
}

// RecentLogsResponse is the number of delivery log entries since Since.
type RecentLogsResponse struct {
	Count int       `json:"count"`
	Since time.Time `json:"since"`
}

// AnalyticsHandlers holds dependencies for analytics HTTP handlers. Every
// endpoint answers 200 with zero or an empty list when there is no data.
type AnalyticsHandlers struct {
	service   *analytics.Service
	paginator Paginator
}

// NewAnalyticsHandlers creates a new AnalyticsHandlers instance.
func NewAnalyticsHandlers(service *analytics.Service, paginator Paginator) *AnalyticsHandlers {
	return &AnalyticsHandlers{service: service, paginator: paginator}
}

func (h *AnalyticsHandlers) count(w http.ResponseWriter, r *http.Request, fn func(context.Context) (int, error)) {
	n, err := fn(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to compute count")
		return
	}
	writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// BeaconCount handles GET /analytics/beacons/count.
func (h *AnalyticsHandlers) BeaconCount(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.service.BeaconCount)
}

// ActiveBeaconCount handles GET /analytics/beacons/active/count.
func (h *AnalyticsHandlers) ActiveBeaconCount(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.service.ActiveBeaconCount)
}

// LocationCount handles GET /analytics/locations/count.
func (h *AnalyticsHandlers) LocationCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.LocationCount(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to count locations")
		return
	}
	writeJSON(w, r, http.StatusOK, LocationCountResponse{TotalLocations: n})
}

// RecentLogs handles GET /analytics/logs/recent.
func (h *AnalyticsHandlers) RecentLogs(w http.ResponseWriter, r *http.Request) {
	n, since, err := h.service.RecentLogCount(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to count recent delivery logs")
		return
	}
	writeJSON(w, r, http.StatusOK, RecentLogsResponse{Count: n, Since: since})
}

// PopularAdvertisements handles GET /analytics/ads/popular?search=&page=.
func (h *AnalyticsHandlers) PopularAdvertisements(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	ranked, err := h.service.PopularAdvertisements(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, r, err, "failed to rank advertisements")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, pageOf(ranked, page), len(ranked)))
}

// ClicksPerDay handles GET /analytics/clicks/daily?date=.
func (h *AnalyticsHandlers) ClicksPerDay(w http.ResponseWriter, r *http.Request) {
	h.daily(w, r, h.service.ClicksPerDay)
}

// ImpressionsPerDay handles GET /analytics/impressions/daily?date=.
func (h *AnalyticsHandlers) ImpressionsPerDay(w http.ResponseWriter, r *http.Request) {
	h.daily(w, r, h.service.ImpressionsPerDay)
}

func (h *AnalyticsHandlers) daily(w http.ResponseWriter, r *http.Request, fn func(context.Context, *time.Time) ([]analytics.DailyCount, error)) {
	fe := validate.FieldErrors{}
	day := parseDateParam(r, "date", fe)
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}
	counts, err := fn(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err, "failed to compute daily counts")
		return
	}
	writeJSON(w, r, http.StatusOK, counts)
}

// MessagesPerDay handles GET /analytics/messages/daily?date=.
func (h *AnalyticsHandlers) MessagesPerDay(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	day := parseDateParam(r, "date", fe)
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}
	counts, err := h.service.MessagesPerDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err, "failed to compute daily message counts")
		return
	}
	writeJSON(w, r, http.StatusOK, counts)
}

// LikedSaved handles GET /me/ads/liked-saved?search=&page= for the
// authenticated user.
func (h *AnalyticsHandlers) LikedSaved(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
		return
	}
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	rows, err := h.service.LikedSaved(r.Context(), userID, r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list liked and saved advertisements")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, pageOf(rows, page), len(rows)))
}

// pageOf slices an in-memory result set.
func pageOf[T any](all []T, page Page) []T {
	start := page.Offset()
	if start < 0 || start >= len(all) {
		return []T{}
	}
	end := start + min(page.Limit(), len(all)-start)
	return all[start:end]
}
