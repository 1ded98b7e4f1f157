package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/beaconads/internal/assignment"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/geo"
	"github.com/onnwee/beaconads/internal/message"
	"github.com/onnwee/beaconads/internal/validate"
)

// CreateBeaconRequest represents the request body for POST /beacons.
type CreateBeaconRequest struct {
	Name           string        `json:"name"`
	LocationName   string        `json:"location_name"`
	Minor          *int          `json:"minor,omitempty"`
	Major          *int          `json:"major,omitempty"`
	SignalStrength *int          `json:"signal_strength,omitempty"`
	BatteryStatus  *int          `json:"battery_status,omitempty"`
	Latitude       *float64      `json:"latitude,omitempty"`
	Longitude      *float64      `json:"longitude,omitempty"`
	Status         beacon.Status `json:"status,omitempty"`
}

// TelemetryRequest represents the request body for PUT /beacons/telemetry.
type TelemetryRequest struct {
	BeaconID       string `json:"beacon_id"`
	BatteryStatus  *int   `json:"battery_status"`
	SignalStrength *int   `json:"signal_strength"`
}

// BeaconHandlersConfig configures BeaconHandlers.
type BeaconHandlersConfig struct {
	Beacons     beacon.Repository
	Assignments *assignment.Service
	Logs        *deliverylog.Recorder
	Messages    message.Repository
	Paginator   Paginator
}

// BeaconHandlers holds dependencies for beacon HTTP handlers.
type BeaconHandlers struct {
	beacons     beacon.Repository
	assignments *assignment.Service
	logs        *deliverylog.Recorder
	messages    message.Repository
	paginator   Paginator
	now         func() time.Time
}

// NewBeaconHandlers creates a new BeaconHandlers instance.
func NewBeaconHandlers(cfg BeaconHandlersConfig) *BeaconHandlers {
	return &BeaconHandlers{
		beacons:     cfg.Beacons,
		assignments: cfg.Assignments,
		logs:        cfg.Logs,
		messages:    cfg.Messages,
		paginator:   cfg.Paginator,
		now:         time.Now,
	}
}

// CreateBeacon handles POST /beacons.
func (h *BeaconHandlers) CreateBeacon(w http.ResponseWriter, r *http.Request) {
	var req CreateBeaconRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b := &beacon.Beacon{
		Name:           req.Name,
		LocationName:   req.LocationName,
		Minor:          req.Minor,
		Major:          req.Major,
		SignalStrength: req.SignalStrength,
		BatteryStatus:  req.BatteryStatus,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Status:         req.Status,
	}
	if err := h.beacons.Create(r.Context(), b); err != nil {
		if errors.Is(err, beacon.ErrDuplicateName) {
			writeCodedError(w, r, ErrCodeConflict, "A beacon with this name already exists")
			return
		}
		writeServiceError(w, r, err, "failed to create beacon")
		return
	}
	writeJSON(w, r, http.StatusCreated, b)
}

// GetBeacon handles GET /beacons/{id}.
func (h *BeaconHandlers) GetBeacon(w http.ResponseWriter, r *http.Request) {
	b, err := h.beacons.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load beacon", beacon.ErrBeaconNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// ListBeacons handles GET /beacons?search=&status=&page=&page_size=.
func (h *BeaconHandlers) ListBeacons(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)

	filter := beacon.Filter{
		Search: r.URL.Query().Get("search"),
		Status: beacon.Status(r.URL.Query().Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		fe.Add("status", "must be Active or Inactive")
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	beacons, total, err := h.beacons.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list beacons")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, beacons, total))
}

// UpdateBeacon handles PATCH /beacons/{id}.
func (h *BeaconHandlers) UpdateBeacon(w http.ResponseWriter, r *http.Request) {
	var u beacon.Update
	if !decodeJSON(w, r, &u) {
		return
	}

	b, err := h.beacons.Update(r.Context(), r.PathValue("id"), &u)
	if err != nil {
		if errors.Is(err, beacon.ErrDuplicateName) {
			writeCodedError(w, r, ErrCodeConflict, "A beacon with this name already exists")
			return
		}
		writeServiceError(w, r, err, "failed to update beacon", beacon.ErrBeaconNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// DeleteBeacon handles DELETE /beacons/{id}. Beacons still referenced by
// assignments, delivery logs or messages cannot be deleted.
func (h *BeaconHandlers) DeleteBeacon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.beacons.GetByID(ctx, id); err != nil {
		writeServiceError(w, r, err, "failed to load beacon", beacon.ErrBeaconNotFound)
		return
	}

	inUse, err := h.referenced(r, id)
	if err != nil {
		writeServiceError(w, r, err, "failed to check beacon references")
		return
	}
	if inUse {
		writeCodedError(w, r, ErrCodeConflict, "Beacon is referenced by assignments, logs or messages; deactivate it instead")
		return
	}

	if err := h.beacons.Delete(ctx, id); err != nil {
		if errors.Is(err, beacon.ErrInUse) {
			writeCodedError(w, r, ErrCodeConflict, "Beacon is referenced by assignments, logs or messages; deactivate it instead")
			return
		}
		writeServiceError(w, r, err, "failed to delete beacon", beacon.ErrBeaconNotFound)
		return
	}
	slog.InfoContext(ctx, "beacon deleted", "beacon_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *BeaconHandlers) referenced(r *http.Request, id string) (bool, error) {
	ctx := r.Context()
	if _, n, err := h.assignments.List(ctx, assignment.Filter{BeaconID: id}, 1, 0); err != nil || n > 0 {
		return n > 0, err
	}
	if _, n, err := h.logs.List(ctx, deliverylog.Filter{BeaconID: id}, 1, 0); err != nil || n > 0 {
		return n > 0, err
	}
	_, n, err := h.messages.List(ctx, message.Filter{BeaconID: id}, 1, 0)
	return n > 0, err
}

// UpdateTelemetry handles PUT /beacons/telemetry.
func (h *BeaconHandlers) UpdateTelemetry(w http.ResponseWriter, r *http.Request) {
	var req TelemetryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fe := validate.FieldErrors{}
	if req.BeaconID == "" {
		fe.Add("beacon_id", "this field is required")
	}
	t := beacon.Telemetry{BatteryStatus: req.BatteryStatus, SignalStrength: req.SignalStrength}
	var telemetryErrs validate.FieldErrors
	if errors.As(t.Validate(), &telemetryErrs) {
		for field, msg := range telemetryErrs {
			fe.Add(field, msg)
		}
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	b, err := h.beacons.UpdateTelemetry(r.Context(), req.BeaconID, t, h.now().UTC())
	if err != nil {
		writeServiceError(w, r, err, "failed to update beacon telemetry", beacon.ErrBeaconNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// Locations handles GET /beacons/locations?geohash=, the beacons with
// coordinates, optionally limited to one geohash cell.
func (h *BeaconHandlers) Locations(w http.ResponseWriter, r *http.Request) {
	var area string
	if raw := r.URL.Query().Get("geohash"); raw != "" {
		prefix, err := geo.ParsePrefix(raw)
		if err != nil {
			fe := validate.FieldErrors{}
			fe.Add("geohash", "Enter a geohash of 1 to 12 base32 characters.")
			WriteFieldErrors(w, r.Context(), fe)
			return
		}
		area = prefix
	}

	locations, err := h.beacons.Locations(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list beacon locations")
		return
	}

	out := make([]beacon.Location, 0, len(locations))
	for _, l := range locations {
		l.Geohash = geo.Encode(l.Latitude, l.Longitude, geo.DefaultPrecision)
		if area != "" && !geo.Within(l.Geohash, area) {
			continue
		}
		out = append(out, l)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ActiveAdvertisements handles GET /beacons/{id}/advertisements: the
// advertisements the beacon should broadcast right now.
func (h *BeaconHandlers) ActiveAdvertisements(w http.ResponseWriter, r *http.Request) {
	scheduled, err := h.assignments.ActiveAdvertisements(r.Context(), r.PathValue("id"), h.now().UTC())
	if err != nil {
		writeServiceError(w, r, err, "failed to load active advertisements", beacon.ErrBeaconNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, scheduled)
}
