package api

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/validate"
)

// CreateLogRequest represents the request body for POST /logs.
type CreateLogRequest struct {
	BeaconID        string `json:"beacon_id"`
	AdvertisementID string `json:"advertisement_id"`
}

// LogHandlers holds dependencies for delivery log HTTP handlers.
type LogHandlers struct {
	recorder  *deliverylog.Recorder
	paginator Paginator
	upgrader  websocket.Upgrader
}

// NewLogHandlers creates a new LogHandlers instance. Websocket connections
// are accepted from allowedOrigins, or from any origin when it is empty.
func NewLogHandlers(recorder *deliverylog.Recorder, paginator Paginator, allowedOrigins []string) *LogHandlers {
	return &LogHandlers{
		recorder:  recorder,
		paginator: paginator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// CreateLog handles POST /logs.
func (h *LogHandlers) CreateLog(w http.ResponseWriter, r *http.Request) {
	var req CreateLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.recorder.Record(r.Context(), req.BeaconID, req.AdvertisementID)
	if err != nil {
		writeServiceError(w, r, err, "failed to record delivery")
		return
	}
	writeJSON(w, r, http.StatusCreated, l)
}

// GetLog handles GET /logs/{id}.
func (h *LogHandlers) GetLog(w http.ResponseWriter, r *http.Request) {
	l, err := h.recorder.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load delivery log", deliverylog.ErrLogNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, l)
}

// ListLogs handles GET /logs?beacon_id=&advertisement_id=&since=YYYY-MM-DD,
// newest first.
func (h *LogHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)
	query := r.URL.Query()
	filter := deliverylog.Filter{
		BeaconID:        query.Get("beacon_id"),
		AdvertisementID: query.Get("advertisement_id"),
		Since:           parseDateParam(r, "since", fe),
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	logs, total, err := h.recorder.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list delivery logs")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, logs, total))
}

// StreamLogs handles GET /logs/ws?beacon_id=: a websocket feed of new
// delivery entries, for one beacon or for all when beacon_id is omitted.
func (h *LogHandlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	broadcaster := h.recorder.Broadcaster()
	if broadcaster == nil {
		writeCodedError(w, r, ErrCodeServiceUnavailable, "Live delivery feed is not enabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	broadcaster.Serve(r.Context(), conn, r.URL.Query().Get("beacon_id"))
}
