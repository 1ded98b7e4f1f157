package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/beaconads/internal/assignment"
	"github.com/onnwee/beaconads/internal/validate"
)

// CreateAssignmentRequest represents the request body for POST /assignments.
// StartDate defaults to now.
type CreateAssignmentRequest struct {
	BeaconID        string     `json:"beacon_id"`
	AdvertisementID string     `json:"advertisement_id"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date"`
}

// DeactivateExpiredResponse reports the result of an expiry sweep.
type DeactivateExpiredResponse struct {
	Deactivated int       `json:"deactivated"`
	RanAt       time.Time `json:"ran_at"`
}

// AssignmentHandlers holds dependencies for assignment HTTP handlers.
type AssignmentHandlers struct {
	service   *assignment.Service
	paginator Paginator
	now       func() time.Time
}

// NewAssignmentHandlers creates a new AssignmentHandlers instance.
func NewAssignmentHandlers(service *assignment.Service, paginator Paginator) *AssignmentHandlers {
	return &AssignmentHandlers{service: service, paginator: paginator, now: time.Now}
}

// CreateAssignment handles POST /assignments.
func (h *AssignmentHandlers) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a := &assignment.Assignment{
		BeaconID:        req.BeaconID,
		AdvertisementID: req.AdvertisementID,
	}
	if req.StartDate != nil {
		a.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		a.EndDate = *req.EndDate
	}

	if err := h.service.Create(r.Context(), a); err != nil {
		if errors.Is(err, assignment.ErrDuplicateAssignment) {
			writeCodedError(w, r, ErrCodeConflict, "Advertisement is already assigned to this beacon")
			return
		}
		writeServiceError(w, r, err, "failed to create assignment")
		return
	}
	writeJSON(w, r, http.StatusCreated, a)
}

// GetAssignment handles GET /assignments/{id}.
func (h *AssignmentHandlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load assignment", assignment.ErrAssignmentNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// ListAssignments handles GET /assignments?beacon_id=&advertisement_id=&start_date=&end_date=.
// start_date keeps windows starting on or after the date, end_date keeps
// windows ending on or before it.
func (h *AssignmentHandlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	query := r.URL.Query()
	filter := assignment.Filter{
		BeaconID:        query.Get("beacon_id"),
		AdvertisementID: query.Get("advertisement_id"),
		StartFrom:       parseDateParam(r, "start_date", fe),
		EndUntil:        parseDateParam(r, "end_date", fe),
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	list, total, err := h.service.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list assignments")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, list, total))
}

// UpdateAssignment handles PATCH /assignments/{id}.
func (h *AssignmentHandlers) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var u assignment.Update
	if !decodeJSON(w, r, &u) {
		return
	}

	a, err := h.service.Update(r.Context(), r.PathValue("id"), &u)
	if err != nil {
		writeServiceError(w, r, err, "failed to update assignment", assignment.ErrAssignmentNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// DeleteAssignment handles DELETE /assignments/{id}.
func (h *AssignmentHandlers) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, "failed to delete assignment", assignment.ErrAssignmentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateExpired handles POST /admin/advertisements/deactivate-expired.
// Running it again immediately reports zero.
func (h *AssignmentHandlers) DeactivateExpired(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	n, err := h.service.DeactivateExpired(r.Context(), now)
	if err != nil {
		writeServiceError(w, r, err, "failed to deactivate expired advertisements")
		return
	}
	writeJSON(w, r, http.StatusOK, DeactivateExpiredResponse{Deactivated: n, RanAt: now})
}
