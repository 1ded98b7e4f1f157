package api

import (
	"net/http"
	"strconv"

	"github.com/onnwee/beaconads/internal/middleware"
	"github.com/onnwee/beaconads/internal/notification"
	"github.com/onnwee/beaconads/internal/validate"
)

// MarkAllReadResponse is the body of POST /me/notifications/read-all.
type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

// NotificationHandlers serves the caller's notification inbox.
type NotificationHandlers struct {
	notifications *notification.Service
	paginator     Paginator
}

// NewNotificationHandlers creates a new NotificationHandlers instance.
func NewNotificationHandlers(notifications *notification.Service, paginator Paginator) *NotificationHandlers {
	return &NotificationHandlers{notifications: notifications, paginator: paginator}
}

// ListNotifications handles GET /me/notifications?unread=true, newest first.
func (h *NotificationHandlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
		return
	}

	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	unreadOnly := false
	if s := r.URL.Query().Get("unread"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			fe.Add("unread", "must be true or false")
		}
		unreadOnly = v
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	items, total, err := h.notifications.List(r.Context(), userID, unreadOnly, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list notifications")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, items, total))
}

// MarkRead handles POST /me/notifications/{id}/read.
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to mark notification read", notification.ErrNotificationNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// MarkAllRead handles POST /me/notifications/read-all.
func (h *NotificationHandlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCodedError(w, r, ErrCodeAuthFailed, "Authentication required")
		return
	}

	n, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "failed to mark notifications read")
		return
	}
	writeJSON(w, r, http.StatusOK, MarkAllReadResponse{Updated: n})
}
