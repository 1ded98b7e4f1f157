package api

import (
	"errors"
	"net/http"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/middleware"
	"github.com/onnwee/beaconads/internal/validate"
)

// EngagementRequest represents the request body for POST /engagements/{kind}.
// Value defaults to true.
type EngagementRequest struct {
	AdvertisementID string `json:"advertisement_id"`
	Value           *bool  `json:"value,omitempty"`
}

// EngagementResponse is returned by POST /engagements/{kind}.
type EngagementResponse struct {
	Message    string                 `json:"message"`
	Engagement *engagement.Engagement `json:"engagement"`
}

var engagementVerbs = map[engagement.Kind]string{
	engagement.KindView:  "viewed",
	engagement.KindLike:  "liked",
	engagement.KindClick: "clicked",
	engagement.KindSave:  "saved",
}

// EngagementHandlers holds dependencies for engagement HTTP handlers.
type EngagementHandlers struct {
	service *engagement.Service
}

// NewEngagementHandlers creates a new EngagementHandlers instance.
func NewEngagementHandlers(service *engagement.Service) *EngagementHandlers {
	return &EngagementHandlers{service: service}
}

// RecordEngagement handles POST /engagements/{kind} for the authenticated user.
func (h *EngagementHandlers) RecordEngagement(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
		return
	}

	kind := engagement.Kind(r.PathValue("kind"))
	if !kind.Valid() {
		writeCodedError(w, r, ErrCodeNotFound, "Unknown engagement kind")
		return
	}

	var req EngagementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdvertisementID == "" {
		WriteFieldErrors(w, r.Context(), validate.FieldErrors{"advertisement_id": "this field is required"})
		return
	}
	value := true
	if req.Value != nil {
		value = *req.Value
	}

	e, err := h.service.Record(r.Context(), userID, req.AdvertisementID, kind, value)
	if err != nil {
		if errors.Is(err, engagement.ErrInvalidReference) {
			writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
			return
		}
		if errors.Is(err, engagement.ErrTooManyConflicts) {
			writeCodedError(w, r, ErrCodeConflict, "Engagement is being updated concurrently, retry")
			return
		}
		writeServiceError(w, r, err, "failed to record engagement", advertisement.ErrAdvertisementNotFound)
		return
	}

	msg := "Advertisement " + engagementVerbs[kind]
	if !value {
		msg = "Advertisement un" + engagementVerbs[kind]
	}
	writeJSON(w, r, http.StatusOK, EngagementResponse{Message: msg, Engagement: e})
}
