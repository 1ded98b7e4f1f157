package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/message"
)

func TestCreateBeacon(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/beacons", map[string]any{
		"name":          "Lobby",
		"location_name": "Main entrance",
		"latitude":      52.37,
		"longitude":     4.89,
	}, env.token)
	expectStatus(t, w, http.StatusCreated)

	b := decodeBody[beacon.Beacon](t, w)
	if b.ID == "" || b.Name != "Lobby" {
		t.Errorf("unexpected beacon: %+v", b)
	}
	if b.Status != beacon.StatusInactive {
		t.Errorf("expected default status Inactive, got %s", b.Status)
	}

	// Same name again
	w = env.do(t, http.MethodPost, "/beacons", map[string]any{"name": "Lobby"}, env.token)
	expectStatus(t, w, http.StatusConflict)
}

func TestCreateBeacon_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		body      any
		wantField string
	}{
		{"missing name", map[string]any{"location_name": "Hall"}, "name"},
		{"signal too high", map[string]any{"name": "A", "signal_strength": 5}, "signal_strength"},
		{"battery too high", map[string]any{"name": "B", "battery_status": 101}, "battery_status"},
		{"latitude out of range", map[string]any{"name": "C", "latitude": 91.0}, "latitude"},
		{"unknown status", map[string]any{"name": "D", "status": "Sleeping"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/beacons", tt.body, env.token)
			expectStatus(t, w, http.StatusBadRequest)

			resp := decodeBody[ErrorResponse](t, w)
			if resp.Error.Code != ErrCodeValidation {
				t.Errorf("expected code %s, got %s", ErrCodeValidation, resp.Error.Code)
			}
			if _, ok := resp.Error.Fields[tt.wantField]; !ok {
				t.Errorf("expected field %q in %v", tt.wantField, resp.Error.Fields)
			}
		})
	}

	w := env.do(t, http.MethodPost, "/beacons", `{"name":`, env.token)
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decodeBody[ErrorResponse](t, w); resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("expected code %s for malformed JSON, got %s", ErrCodeBadRequest, resp.Error.Code)
	}
}

func TestGetUpdateBeacon(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBeacon(t, "Lobby")
	env.createBeacon(t, "Cafe")

	expectStatus(t, env.do(t, http.MethodGet, "/beacons/"+b.ID, nil, ""), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/beacons/missing", nil, ""), http.StatusNotFound)

	w := env.do(t, http.MethodPatch, "/beacons/"+b.ID, map[string]any{"status": "Active"}, env.token)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[beacon.Beacon](t, w); got.Status != beacon.StatusActive || got.Name != "Lobby" {
		t.Errorf("unexpected beacon after update: %+v", got)
	}

	w = env.do(t, http.MethodPatch, "/beacons/"+b.ID, map[string]any{"name": "Cafe"}, env.token)
	expectStatus(t, w, http.StatusConflict)

	w = env.do(t, http.MethodPatch, "/beacons/missing", map[string]any{"status": "Active"}, env.token)
	expectStatus(t, w, http.StatusNotFound)
}

func TestListBeacons(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"North", "South", "East"} {
		env.createBeacon(t, name)
	}
	if _, err := env.beacons.Update(context.Background(), env.createBeacon(t, "West").ID, &beacon.Update{Status: statusPtr(beacon.StatusActive)}); err != nil {
		t.Fatalf("activate beacon: %v", err)
	}

	w := env.do(t, http.MethodGet, "/beacons?page_size=2", nil, "")
	expectStatus(t, w, http.StatusOK)
	page := decodeBody[PageResponse[beacon.Beacon]](t, w)
	if page.Count != 4 || len(page.Results) != 2 || page.Next == nil || page.Previous != nil {
		t.Errorf("unexpected first page: count=%d results=%d next=%v previous=%v", page.Count, len(page.Results), page.Next, page.Previous)
	}

	w = env.do(t, http.MethodGet, "/beacons?search=SOUTH", nil, "")
	page = decodeBody[PageResponse[beacon.Beacon]](t, w)
	if page.Count != 1 || page.Results[0].Name != "South" {
		t.Errorf("search by location: %+v", page)
	}

	w = env.do(t, http.MethodGet, "/beacons?status=Active", nil, "")
	page = decodeBody[PageResponse[beacon.Beacon]](t, w)
	if page.Count != 1 || page.Results[0].Name != "West" {
		t.Errorf("status filter: %+v", page)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/beacons?status=Broken", nil, ""), http.StatusBadRequest)
}

func TestListBeacons_PageBeyondEnd(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"A1", "A2", "A3"} {
		env.createBeacon(t, name)
	}

	w := env.do(t, http.MethodGet, "/beacons?page=9&page_size=2", nil, "")
	expectStatus(t, w, http.StatusOK)

	page := decodeBody[map[string]any](t, w)
	if page["count"] != float64(3) {
		t.Errorf("expected true count 3, got %v", page["count"])
	}
	if results, ok := page["results"].([]any); !ok || len(results) != 0 {
		t.Errorf("expected empty results array, got %v", page["results"])
	}
	if page["next"] != nil {
		t.Errorf("expected null next, got %v", page["next"])
	}
	if page["previous"] != "http://example.com/beacons?page=2&page_size=2" {
		t.Errorf("expected previous to link to the last page, got %v", page["previous"])
	}
}

func TestDeleteBeacon(t *testing.T) {
	env := newTestEnv(t)
	free := env.createBeacon(t, "Free")
	busy := env.createBeacon(t, "Busy")
	if err := env.messages.Create(context.Background(), &message.Message{BeaconID: busy.ID, Content: "hello"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/beacons/"+busy.ID, nil, env.token), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/beacons/"+free.ID, nil, env.token), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/beacons/"+free.ID, nil, env.token), http.StatusNotFound)
}

func TestUpdateTelemetry(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBeacon(t, "Lobby")

	w := env.do(t, http.MethodPut, "/beacons/telemetry", map[string]any{
		"beacon_id":       b.ID,
		"battery_status":  80,
		"signal_strength": -60,
	}, env.token)
	expectStatus(t, w, http.StatusOK)
	got := decodeBody[beacon.Beacon](t, w)
	if got.BatteryStatus == nil || *got.BatteryStatus != 80 || got.LastSeenAt == nil {
		t.Errorf("telemetry not applied: %+v", got)
	}

	w = env.do(t, http.MethodPut, "/beacons/telemetry", map[string]any{"battery_status": 120}, env.token)
	expectStatus(t, w, http.StatusBadRequest)
	fields := decodeBody[ErrorResponse](t, w).Error.Fields
	for _, f := range []string{"beacon_id", "battery_status", "signal_strength"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected field %q in %v", f, fields)
		}
	}

	w = env.do(t, http.MethodPut, "/beacons/telemetry", map[string]any{
		"beacon_id": "missing", "battery_status": 50, "signal_strength": -50,
	}, env.token)
	expectStatus(t, w, http.StatusNotFound)
}

func TestLocations(t *testing.T) {
	env := newTestEnv(t)
	env.createBeacon(t, "NoCoords")

	w := env.do(t, http.MethodGet, "/beacons/locations", nil, "")
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[[]beacon.Location](t, w); len(got) != 0 {
		t.Errorf("expected no locations, got %v", got)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestLocations_Geohash(t *testing.T) {
	env := newTestEnv(t)
	for _, b := range []map[string]any{
		{"name": "Brandenburg", "location_name": "Berlin", "latitude": 52.5200, "longitude": 13.4050},
		{"name": "Trafalgar", "location_name": "London", "latitude": 51.5074, "longitude": -0.1278},
	} {
		expectStatus(t, env.do(t, http.MethodPost, "/beacons", b, env.token), http.StatusCreated)
	}

	w := env.do(t, http.MethodGet, "/beacons/locations", nil, "")
	expectStatus(t, w, http.StatusOK)
	all := decodeBody[[]beacon.Location](t, w)
	if len(all) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(all))
	}
	for _, l := range all {
		if len(l.Geohash) != 7 {
			t.Errorf("expected a 7 character geohash for %s, got %q", l.Name, l.Geohash)
		}
	}

	w = env.do(t, http.MethodGet, "/beacons/locations?geohash=U33", nil, "")
	expectStatus(t, w, http.StatusOK)
	berlin := decodeBody[[]beacon.Location](t, w)
	if len(berlin) != 1 || berlin[0].Name != "Brandenburg" {
		t.Errorf("expected only the Berlin beacon, got %+v", berlin)
	}

	w = env.do(t, http.MethodGet, "/beacons/locations?geohash=9q8a", nil, "")
	expectStatus(t, w, http.StatusBadRequest)
	if _, ok := decodeBody[ErrorResponse](t, w).Error.Fields["geohash"]; !ok {
		t.Errorf("expected geohash field error, got %s", w.Body.String())
	}
}

func TestActiveAdvertisements(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBeacon(t, "Lobby")
	now := time.Now().UTC()
	current := env.createAd(t, "Current")
	expired := env.createAd(t, "Expired")
	env.assign(t, b, current, now.Add(-time.Hour), now.Add(time.Hour))
	env.assign(t, b, expired, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	w := env.do(t, http.MethodGet, "/beacons/"+b.ID+"/advertisements", nil, "")
	expectStatus(t, w, http.StatusOK)
	got := decodeBody[[]map[string]any](t, w)
	if len(got) != 1 {
		t.Fatalf("expected 1 active advertisement, got %d", len(got))
	}
	if ad := got[0]["advertisement"].(map[string]any); ad["title"] != "Current" {
		t.Errorf("expected Current, got %v", ad["title"])
	}

	expectStatus(t, env.do(t, http.MethodGet, "/beacons/missing/advertisements", nil, ""), http.StatusNotFound)
}

func statusPtr(s beacon.Status) *beacon.Status { return &s }
