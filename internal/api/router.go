package api

import (
	"net/http"

	"github.com/onnwee/beaconads/internal/idempotency"
	"github.com/onnwee/beaconads/internal/middleware"
)

// RouterConfig collects the handlers and cross-cutting dependencies of the API.
type RouterConfig struct {
	Beacons        *BeaconHandlers
	Advertisements *AdvertisementHandlers
	Assignments    *AssignmentHandlers
	Engagements    *EngagementHandlers
	Logs           *LogHandlers
	Messages       *MessageHandlers
	Analytics      *AnalyticsHandlers
	Notifications  *NotificationHandlers
	Auth           *AuthHandlers
	Health         *HealthHandlers

	// Tokens validates bearer access tokens.
	Tokens middleware.TokenValidator

	// RateLimitStore backs the auth and engagement limits; nil disables them.
	RateLimitStore middleware.RateLimitStore
	Metrics        *middleware.Metrics

	// Idempotency stores responses for retried creates; nil disables replay.
	Idempotency idempotency.Repository

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// NewRouter registers every route on a ServeMux. Reads are public except the
// per-user views; writes and engagement require a bearer token.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(cfg.Tokens)
	optionalAuth := middleware.OptionalAuth(cfg.Tokens)
	authLimit := limiter(cfg, middleware.DefaultAuthLimit(), middleware.IPKeyFunc())
	engagementLimit := limiter(cfg, middleware.DefaultEngagementLimit(), middleware.UserKeyFunc())

	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, optionalAuth(h))
	}
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}
	// idempotent is private plus Idempotency-Key replay for creates that
	// devices and dashboards retry.
	idempotent := func(pattern string, h http.HandlerFunc) {
		if cfg.Idempotency == nil {
			private(pattern, h)
			return
		}
		mux.Handle(pattern, requireAuth(middleware.Idempotency(cfg.Idempotency, cfg.Metrics)(h)))
	}

	// Health and metrics
	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Auth
	mux.Handle("POST /auth/register", authLimit(http.HandlerFunc(cfg.Auth.Register)))
	mux.Handle("POST /auth/login", authLimit(http.HandlerFunc(cfg.Auth.Login)))
	mux.Handle("POST /auth/refresh", authLimit(http.HandlerFunc(cfg.Auth.Refresh)))
	mux.Handle("POST /auth/password-reset", authLimit(http.HandlerFunc(cfg.Auth.RequestPasswordReset)))
	mux.Handle("POST /auth/password-reset/confirm", authLimit(http.HandlerFunc(cfg.Auth.ConfirmPasswordReset)))

	// Beacons
	public("GET /beacons", cfg.Beacons.ListBeacons)
	private("POST /beacons", cfg.Beacons.CreateBeacon)
	public("GET /beacons/locations", cfg.Beacons.Locations)
	private("PUT /beacons/telemetry", cfg.Beacons.UpdateTelemetry)
	public("GET /beacons/{id}", cfg.Beacons.GetBeacon)
	private("PATCH /beacons/{id}", cfg.Beacons.UpdateBeacon)
	private("DELETE /beacons/{id}", cfg.Beacons.DeleteBeacon)
	public("GET /beacons/{id}/advertisements", cfg.Beacons.ActiveAdvertisements)

	// Advertisements
	public("GET /advertisements", cfg.Advertisements.ListAdvertisements)
	private("POST /advertisements", cfg.Advertisements.CreateAdvertisement)
	public("GET /advertisements/{id}", cfg.Advertisements.GetAdvertisement)
	private("PATCH /advertisements/{id}", cfg.Advertisements.UpdateAdvertisement)
	private("DELETE /advertisements/{id}", cfg.Advertisements.DeleteAdvertisement)
	private("POST /advertisements/{id}/media", cfg.Advertisements.CreateMediaUpload)
	public("GET /advertisements/{id}/media", cfg.Advertisements.GetMedia)
	private("POST /admin/advertisements/deactivate-expired", cfg.Assignments.DeactivateExpired)

	// Assignments
	public("GET /assignments", cfg.Assignments.ListAssignments)
	idempotent("POST /assignments", cfg.Assignments.CreateAssignment)
	public("GET /assignments/{id}", cfg.Assignments.GetAssignment)
	private("PATCH /assignments/{id}", cfg.Assignments.UpdateAssignment)
	private("DELETE /assignments/{id}", cfg.Assignments.DeleteAssignment)

	// Engagement
	mux.Handle("POST /engagements/{kind}", requireAuth(engagementLimit(http.HandlerFunc(cfg.Engagements.RecordEngagement))))

	// Delivery logs
	public("GET /logs", cfg.Logs.ListLogs)
	idempotent("POST /logs", cfg.Logs.CreateLog)
	public("GET /logs/ws", cfg.Logs.StreamLogs)
	public("GET /logs/{id}", cfg.Logs.GetLog)

	// Messages
	public("GET /messages", cfg.Messages.ListMessages)
	idempotent("POST /messages", cfg.Messages.CreateMessage)
	public("GET /messages/{id}", cfg.Messages.GetMessage)
	private("DELETE /messages/{id}", cfg.Messages.DeleteMessage)
	private("POST /messages/{id}/read", cfg.Messages.MarkRead)

	// Analytics
	public("GET /analytics/beacons/count", cfg.Analytics.BeaconCount)
	public("GET /analytics/beacons/active/count", cfg.Analytics.ActiveBeaconCount)
	public("GET /analytics/locations/count", cfg.Analytics.LocationCount)
	public("GET /analytics/logs/recent", cfg.Analytics.RecentLogs)
	private("GET /analytics/ads/popular", cfg.Analytics.PopularAdvertisements)
	public("GET /analytics/clicks/daily", cfg.Analytics.ClicksPerDay)
	public("GET /analytics/impressions/daily", cfg.Analytics.ImpressionsPerDay)
	public("GET /analytics/messages/daily", cfg.Analytics.MessagesPerDay)
	private("GET /me/ads/liked-saved", cfg.Analytics.LikedSaved)

	// Notifications
	private("GET /me/notifications", cfg.Notifications.ListNotifications)
	private("POST /me/notifications/read-all", cfg.Notifications.MarkAllRead)
	private("POST /me/notifications/{id}/read", cfg.Notifications.MarkRead)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeCodedError(w, r, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"service": "beaconads-api"})
	})

	return mux
}

func limiter(cfg RouterConfig, limit middleware.RateLimitConfig, key middleware.KeyFunc) func(http.Handler) http.Handler {
	if cfg.RateLimitStore == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimiter(cfg.RateLimitStore, limit, key, cfg.Metrics)
}
