package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/message"
	"github.com/onnwee/beaconads/internal/validate"
)

// CreateMessageRequest represents the request body for POST /messages.
type CreateMessageRequest struct {
	BeaconID string       `json:"beacon_id"`
	Content  string       `json:"content"`
	Type     message.Type `json:"type,omitempty"`
}

// MessageHandlers holds dependencies for beacon message HTTP handlers.
type MessageHandlers struct {
	messages  message.Repository
	beacons   beacon.Repository
	paginator Paginator
	now       func() time.Time
}

// NewMessageHandlers creates a new MessageHandlers instance.
func NewMessageHandlers(messages message.Repository, beacons beacon.Repository, paginator Paginator) *MessageHandlers {
	return &MessageHandlers{messages: messages, beacons: beacons, paginator: paginator, now: time.Now}
}

// CreateMessage handles POST /messages.
func (h *MessageHandlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.BeaconID != "" {
		if _, err := h.beacons.GetByID(r.Context(), req.BeaconID); errors.Is(err, beacon.ErrBeaconNotFound) {
			WriteFieldErrors(w, r.Context(), validate.FieldErrors{"beacon_id": "beacon not found"})
			return
		} else if err != nil {
			writeServiceError(w, r, err, "failed to load beacon")
			return
		}
	}

	m := &message.Message{BeaconID: req.BeaconID, Content: req.Content, Type: req.Type}
	if err := h.messages.Create(r.Context(), m); err != nil {
		writeServiceError(w, r, err, "failed to create message")
		return
	}
	writeJSON(w, r, http.StatusCreated, m)
}

// GetMessage handles GET /messages/{id}.
func (h *MessageHandlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load message", message.ErrMessageNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// ListMessages handles GET /messages?beacon_id=&since=YYYY-MM-DD, newest first.
func (h *MessageHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	filter := message.Filter{
		BeaconID: r.URL.Query().Get("beacon_id"),
		Since:    parseDateParam(r, "since", fe),
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	list, total, err := h.messages.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list messages")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, list, total))
}

// MarkRead handles POST /messages/{id}/read. The first read time is kept.
func (h *MessageHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.MarkRead(r.Context(), r.PathValue("id"), h.now().UTC())
	if err != nil {
		writeServiceError(w, r, err, "failed to mark message read", message.ErrMessageNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// DeleteMessage handles DELETE /messages/{id}.
func (h *MessageHandlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, "failed to delete message", message.ErrMessageNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
