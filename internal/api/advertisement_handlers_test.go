package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/upload"
)

// fakeMedia presigns fixed URLs and reports objects listed in uploaded.
type fakeMedia struct {
	uploaded map[string]bool
}

func (f *fakeMedia) GenerateSignedURL(_ context.Context, req upload.SignedURLRequest) (*upload.SignedURLResponse, error) {
	if _, ok := upload.AllowedMIMETypes[req.ContentType]; !ok {
		return nil, upload.ErrUnsupportedType
	}
	if req.SizeBytes > 10<<20 {
		return nil, upload.ErrFileTooLarge
	}
	key, err := upload.GenerateObjectKey(req.ContentType, req.AdvertisementID)
	if err != nil {
		return nil, err
	}
	return &upload.SignedURLResponse{
		URL:       "https://storage.example.com/" + key + "?X-Amz-Signature=abc",
		Key:       key,
		MediaType: upload.MediaTypeFor(req.ContentType),
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeMedia) Stat(_ context.Context, key string) (*upload.ObjectInfo, error) {
	if !f.uploaded[key] {
		return nil, upload.ErrObjectNotFound
	}
	return &upload.ObjectInfo{Key: key, ContentType: "image/png", SizeBytes: 2048}, nil
}

func TestCreateAdvertisement(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/advertisements", map[string]any{
		"title":   "Summer sale",
		"content": "Everything 20% off",
	}, env.token)
	expectStatus(t, w, http.StatusCreated)

	ad := decodeBody[advertisement.Advertisement](t, w)
	if !ad.IsActive || ad.MediaType != advertisement.MediaText {
		t.Errorf("unexpected defaults: %+v", ad)
	}
	if ad.CreatedBy == nil || *ad.CreatedBy != env.userID {
		t.Errorf("expected created_by %s, got %v", env.userID, ad.CreatedBy)
	}

	w = env.do(t, http.MethodPost, "/advertisements", map[string]any{"title": "", "media_type": "audio"}, env.token)
	expectStatus(t, w, http.StatusBadRequest)
	fields := decodeBody[ErrorResponse](t, w).Error.Fields
	if _, ok := fields["title"]; !ok {
		t.Errorf("expected title error in %v", fields)
	}
	if _, ok := fields["media_type"]; !ok {
		t.Errorf("expected media_type error in %v", fields)
	}
}

func TestListAdvertisements(t *testing.T) {
	env := newTestEnv(t)
	env.createAd(t, "Coffee deal")
	env.createAd(t, "Tea deal")
	old := env.createAd(t, "Old coffee")
	if _, err := env.ads.Deactivate(context.Background(), []string{old.ID}, time.Now()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		query     string
		wantCount int
	}{
		{"", 3},
		{"?search=COFFEE", 2},
		{"?active=true", 2},
		{"?active=false&search=coffee", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/advertisements"+tt.query, nil, "")
			expectStatus(t, w, http.StatusOK)
			if page := decodeBody[PageResponse[advertisement.Advertisement]](t, w); page.Count != tt.wantCount {
				t.Errorf("expected count %d, got %d", tt.wantCount, page.Count)
			}
		})
	}

	expectStatus(t, env.do(t, http.MethodGet, "/advertisements?active=maybe", nil, ""), http.StatusBadRequest)
}

func TestUpdateAdvertisement_InvalidatesSchedule(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBeacon(t, "Lobby")
	ad := env.createAd(t, "Coffee")
	now := time.Now().UTC()
	env.assign(t, b, ad, now.Add(-time.Hour), now.Add(time.Hour))

	// Warm the cache.
	w := env.do(t, http.MethodGet, "/beacons/"+b.ID+"/advertisements", nil, "")
	if got := decodeBody[[]map[string]any](t, w); len(got) != 1 {
		t.Fatalf("expected 1 active advertisement, got %d", len(got))
	}

	w = env.do(t, http.MethodPatch, "/advertisements/"+ad.ID, map[string]any{"is_active": false}, env.token)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/beacons/"+b.ID+"/advertisements", nil, "")
	if got := decodeBody[[]map[string]any](t, w); len(got) != 0 {
		t.Errorf("expected the deactivated ad to disappear, got %v", got)
	}

	expectStatus(t, env.do(t, http.MethodPatch, "/advertisements/missing", map[string]any{"title": "x"}, env.token), http.StatusNotFound)
}

func TestDeleteAdvertisement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	free := env.createAd(t, "Free")
	engaged := env.createAd(t, "Engaged")
	if err := env.engagements.Insert(ctx, &engagement.Engagement{UserID: env.userID, AdvertisementID: engaged.ID, Kind: engagement.KindView, Value: true}); err != nil {
		t.Fatalf("insert engagement: %v", err)
	}
	assigned := env.createAd(t, "Assigned")
	now := time.Now().UTC()
	env.assign(t, env.createBeacon(t, "Lobby"), assigned, now, now.Add(time.Hour))

	expectStatus(t, env.do(t, http.MethodDelete, "/advertisements/"+engaged.ID, nil, env.token), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/advertisements/"+assigned.ID, nil, env.token), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/advertisements/"+free.ID, nil, env.token), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/advertisements/"+free.ID, nil, ""), http.StatusNotFound)
}

func TestMediaUpload_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	ad := env.createAd(t, "Coffee")

	w := env.do(t, http.MethodPost, "/advertisements/"+ad.ID+"/media", map[string]any{
		"content_type": "image/png", "size_bytes": 1024,
	}, env.token)
	expectStatus(t, w, http.StatusServiceUnavailable)
	if resp := decodeBody[ErrorResponse](t, w); resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("expected code %s, got %s", ErrCodeServiceUnavailable, resp.Error.Code)
	}
}

func TestMediaUpload(t *testing.T) {
	media := &fakeMedia{uploaded: map[string]bool{}}
	env := newTestEnv(t, withMedia(media))
	ad := env.createAd(t, "Coffee")

	expectStatus(t, env.do(t, http.MethodGet, "/advertisements/"+ad.ID+"/media", nil, ""), http.StatusNotFound)

	w := env.do(t, http.MethodPost, "/advertisements/"+ad.ID+"/media", map[string]any{
		"content_type": "video/mp4", "size_bytes": 4096,
	}, env.token)
	expectStatus(t, w, http.StatusOK)
	resp := decodeBody[MediaUploadResponse](t, w)
	if resp.Upload == nil || resp.Advertisement == nil {
		t.Fatalf("incomplete response: %s", w.Body.String())
	}
	if resp.Advertisement.MediaType != advertisement.MediaVideo {
		t.Errorf("expected media type video, got %s", resp.Advertisement.MediaType)
	}
	if resp.Advertisement.MediaKey == nil || *resp.Advertisement.MediaKey != resp.Upload.Key {
		t.Errorf("media key not recorded: %v vs %s", resp.Advertisement.MediaKey, resp.Upload.Key)
	}

	// Presigned but not yet uploaded
	expectStatus(t, env.do(t, http.MethodGet, "/advertisements/"+ad.ID+"/media", nil, ""), http.StatusNotFound)

	media.uploaded[resp.Upload.Key] = true
	w = env.do(t, http.MethodGet, "/advertisements/"+ad.ID+"/media", nil, "")
	expectStatus(t, w, http.StatusOK)
	if info := decodeBody[upload.ObjectInfo](t, w); info.Key != resp.Upload.Key {
		t.Errorf("unexpected object info: %+v", info)
	}
}

func TestMediaUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, withMedia(&fakeMedia{}))
	ad := env.createAd(t, "Coffee")

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"unsupported type", "/advertisements/" + ad.ID + "/media", map[string]any{"content_type": "application/pdf", "size_bytes": 10}, http.StatusBadRequest, ErrCodeUnsupportedType},
		{"too large", "/advertisements/" + ad.ID + "/media", map[string]any{"content_type": "image/png", "size_bytes": 100 << 20}, http.StatusBadRequest, ErrCodeValidation},
		{"missing fields", "/advertisements/" + ad.ID + "/media", map[string]any{}, http.StatusBadRequest, ErrCodeValidation},
		{"unknown advertisement", "/advertisements/missing/media", map[string]any{"content_type": "image/png", "size_bytes": 10}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body, env.token)
			expectStatus(t, w, tt.wantStatus)
			if resp := decodeBody[ErrorResponse](t, w); resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
		})
	}
}
