package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/assignment"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/middleware"
	"github.com/onnwee/beaconads/internal/upload"
	"github.com/onnwee/beaconads/internal/validate"
)

// CreateAdvertisementRequest represents the request body for POST /advertisements.
type CreateAdvertisementRequest struct {
	Title     string                  `json:"title"`
	Content   string                  `json:"content"`
	MediaType advertisement.MediaType `json:"media_type,omitempty"`
}

// MediaUploadRequest represents the request body for POST /advertisements/{id}/media.
type MediaUploadRequest struct {
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// MediaUploadResponse is the presigned upload plus the updated advertisement.
type MediaUploadResponse struct {
	Upload        *upload.SignedURLResponse    `json:"upload"`
	Advertisement *advertisement.Advertisement `json:"advertisement"`
}

// MediaStore presigns media uploads and inspects uploaded objects.
type MediaStore interface {
	GenerateSignedURL(ctx context.Context, req upload.SignedURLRequest) (*upload.SignedURLResponse, error)
	Stat(ctx context.Context, key string) (*upload.ObjectInfo, error)
}

// AdvertisementNotifier is told about every created advertisement.
type AdvertisementNotifier interface {
	AdvertisementCreated(ctx context.Context, ad *advertisement.Advertisement) (int, error)
}

// AdvertisementHandlersConfig configures AdvertisementHandlers.
type AdvertisementHandlersConfig struct {
	Advertisements advertisement.Repository
	Assignments    *assignment.Service
	Logs           *deliverylog.Recorder
	Engagements    engagement.Repository
	// Media is nil when object storage is not configured.
	Media     MediaStore
	Paginator Paginator
	// Notifier is nil when notifications are disabled.
	Notifier AdvertisementNotifier
}

// AdvertisementHandlers holds dependencies for advertisement HTTP handlers.
type AdvertisementHandlers struct {
	ads         advertisement.Repository
	assignments *assignment.Service
	logs        *deliverylog.Recorder
	engagements engagement.Repository
	media       MediaStore
	paginator   Paginator
	notifier    AdvertisementNotifier
}

// NewAdvertisementHandlers creates a new AdvertisementHandlers instance.
func NewAdvertisementHandlers(cfg AdvertisementHandlersConfig) *AdvertisementHandlers {
	return &AdvertisementHandlers{
		ads:         cfg.Advertisements,
		assignments: cfg.Assignments,
		logs:        cfg.Logs,
		engagements: cfg.Engagements,
		media:       cfg.Media,
		paginator:   cfg.Paginator,
		notifier:    cfg.Notifier,
	}
}

// CreateAdvertisement handles POST /advertisements.
func (h *AdvertisementHandlers) CreateAdvertisement(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvertisementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ad := &advertisement.Advertisement{
		Title:     req.Title,
		Content:   req.Content,
		MediaType: req.MediaType,
	}
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		ad.CreatedBy = &userID
	}
	if err := h.ads.Create(r.Context(), ad); err != nil {
		writeServiceError(w, r, err, "failed to create advertisement")
		return
	}
	if h.notifier != nil {
		if _, err := h.notifier.AdvertisementCreated(r.Context(), ad); err != nil {
			slog.WarnContext(r.Context(), "failed to notify users of new advertisement",
				"advertisement_id", ad.ID, "error", err)
		}
	}
	writeJSON(w, r, http.StatusCreated, ad)
}

// GetAdvertisement handles GET /advertisements/{id}.
func (h *AdvertisementHandlers) GetAdvertisement(w http.ResponseWriter, r *http.Request) {
	ad, err := h.ads.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, ad)
}

// ListAdvertisements handles GET /advertisements?search=&active=&page=&page_size=.
func (h *AdvertisementHandlers) ListAdvertisements(w http.ResponseWriter, r *http.Request) {
	fe := validate.FieldErrors{}
	page := h.paginator.Parse(r, fe)

	filter := advertisement.Filter{Search: r.URL.Query().Get("search")}
	if s := r.URL.Query().Get("active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			fe.Add("active", "must be true or false")
		} else {
			filter.Active = &active
		}
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	ads, total, err := h.ads.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		writeServiceError(w, r, err, "failed to list advertisements")
		return
	}
	writeJSON(w, r, http.StatusOK, NewPageResponse(r, page, ads, total))
}

// UpdateAdvertisement handles PATCH /advertisements/{id}.
func (h *AdvertisementHandlers) UpdateAdvertisement(w http.ResponseWriter, r *http.Request) {
	var u advertisement.Update
	if !decodeJSON(w, r, &u) {
		return
	}

	ad, err := h.ads.Update(r.Context(), r.PathValue("id"), &u)
	if err != nil {
		writeServiceError(w, r, err, "failed to update advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}
	h.assignments.InvalidateAdvertisement(r.Context(), ad.ID)
	writeJSON(w, r, http.StatusOK, ad)
}

// DeleteAdvertisement handles DELETE /advertisements/{id}. Advertisements
// still referenced by assignments, delivery logs or engagements cannot be
// deleted.
func (h *AdvertisementHandlers) DeleteAdvertisement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.ads.GetByID(ctx, id); err != nil {
		writeServiceError(w, r, err, "failed to load advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}

	inUse, err := h.referenced(ctx, id)
	if err != nil {
		writeServiceError(w, r, err, "failed to check advertisement references")
		return
	}
	if inUse {
		writeCodedError(w, r, ErrCodeConflict, "Advertisement is referenced by assignments, logs or engagements; deactivate it instead")
		return
	}

	if err := h.ads.Delete(ctx, id); err != nil {
		if errors.Is(err, advertisement.ErrInUse) {
			writeCodedError(w, r, ErrCodeConflict, "Advertisement is referenced by assignments, logs or engagements; deactivate it instead")
			return
		}
		writeServiceError(w, r, err, "failed to delete advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}
	h.assignments.InvalidateAdvertisement(ctx, id)
	slog.InfoContext(ctx, "advertisement deleted", "advertisement_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdvertisementHandlers) referenced(ctx context.Context, id string) (bool, error) {
	if _, n, err := h.assignments.List(ctx, assignment.Filter{AdvertisementID: id}, 1, 0); err != nil || n > 0 {
		return n > 0, err
	}
	if _, n, err := h.logs.List(ctx, deliverylog.Filter{AdvertisementID: id}, 1, 0); err != nil || n > 0 {
		return n > 0, err
	}
	n, err := h.engagements.CountByAdvertisement(ctx, id)
	return n > 0, err
}

// CreateMediaUpload handles POST /advertisements/{id}/media. It presigns a
// PUT URL for the attachment and records the object key on the advertisement.
func (h *AdvertisementHandlers) CreateMediaUpload(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeCodedError(w, r, ErrCodeServiceUnavailable, "Media storage is not configured")
		return
	}

	var req MediaUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fe := validate.FieldErrors{}
	if req.ContentType == "" {
		fe.Add("content_type", "this field is required")
	}
	if req.SizeBytes <= 0 {
		fe.Add("size_bytes", "must be positive")
	}
	if len(fe) > 0 {
		WriteFieldErrors(w, r.Context(), fe)
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")
	if _, err := h.ads.GetByID(ctx, id); err != nil {
		writeServiceError(w, r, err, "failed to load advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}

	signed, err := h.media.GenerateSignedURL(ctx, upload.SignedURLRequest{
		ContentType:     req.ContentType,
		SizeBytes:       req.SizeBytes,
		AdvertisementID: id,
	})
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrUnsupportedType):
			writeCodedError(w, r, ErrCodeUnsupportedType,
				"Unsupported content type. Allowed types: image/jpeg, image/png, image/gif, image/webp, video/mp4, video/webm")
		case errors.Is(err, upload.ErrFileTooLarge), errors.Is(err, upload.ErrInvalidSize):
			WriteFieldErrors(w, ctx, validate.FieldErrors{"size_bytes": err.Error()})
		default:
			writeServiceError(w, r, err, "failed to generate signed URL")
		}
		return
	}

	ad, err := h.ads.SetMedia(ctx, id, signed.Key, signed.MediaType)
	if err != nil {
		writeServiceError(w, r, err, "failed to attach media", advertisement.ErrAdvertisementNotFound)
		return
	}
	h.assignments.InvalidateAdvertisement(ctx, id)
	writeJSON(w, r, http.StatusOK, MediaUploadResponse{Upload: signed, Advertisement: ad})
}

// GetMedia handles GET /advertisements/{id}/media: metadata of the uploaded
// attachment. 404 until the client has completed the upload.
func (h *AdvertisementHandlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeCodedError(w, r, ErrCodeServiceUnavailable, "Media storage is not configured")
		return
	}

	ctx := r.Context()
	ad, err := h.ads.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load advertisement", advertisement.ErrAdvertisementNotFound)
		return
	}
	if ad.MediaKey == nil {
		writeCodedError(w, r, ErrCodeNotFound, "Advertisement has no media attachment")
		return
	}

	info, err := h.media.Stat(ctx, *ad.MediaKey)
	if err != nil {
		if errors.Is(err, upload.ErrObjectNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "Media upload has not completed")
			return
		}
		writeServiceError(w, r, err, "failed to inspect media")
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}
