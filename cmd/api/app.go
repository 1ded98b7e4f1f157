package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/analytics"
	"github.com/onnwee/beaconads/internal/api"
	"github.com/onnwee/beaconads/internal/assignment"
	"github.com/onnwee/beaconads/internal/auth"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/cache"
	"github.com/onnwee/beaconads/internal/config"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/health"
	"github.com/onnwee/beaconads/internal/idempotency"
	"github.com/onnwee/beaconads/internal/jobs"
	"github.com/onnwee/beaconads/internal/message"
	"github.com/onnwee/beaconads/internal/middleware"
	"github.com/onnwee/beaconads/internal/notification"
	"github.com/onnwee/beaconads/internal/stats"
	"github.com/onnwee/beaconads/internal/telemetry"
	"github.com/onnwee/beaconads/internal/tracing"
	"github.com/onnwee/beaconads/internal/upload"
	"github.com/onnwee/beaconads/internal/user"
)

const serviceName = "beaconads-api"

// repositories is the storage backend: Postgres when DATABASE_URL is set,
// in-memory otherwise.
type repositories struct {
	beacons     beacon.Repository
	ads         advertisement.Repository
	assignments assignment.Repository
	engagements engagement.Repository
	logs        deliverylog.Repository
	messages    message.Repository
	users       user.Repository
	notices     notification.Repository
	analytics   analytics.Store
}

func postgresRepositories(conn *sql.DB, logger *slog.Logger) repositories {
	return repositories{
		beacons:     beacon.NewPostgresRepository(conn, logger),
		ads:         advertisement.NewPostgresRepository(conn, logger),
		assignments: assignment.NewPostgresRepository(conn, logger),
		engagements: engagement.NewPostgresRepository(conn, logger),
		logs:        deliverylog.NewPostgresRepository(conn, logger),
		messages:    message.NewPostgresRepository(conn, logger),
		users:       user.NewPostgresRepository(conn, logger),
		notices:     notification.NewPostgresRepository(conn, logger),
		analytics:   analytics.NewPostgresStore(conn, logger),
	}
}

func memoryRepositories(logger *slog.Logger) repositories {
	beacons := beacon.NewInMemoryRepository(logger)
	ads := advertisement.NewInMemoryRepository(logger)
	engagements := engagement.NewInMemoryRepository()
	logs := deliverylog.NewInMemoryRepository()
	messages := message.NewInMemoryRepository()
	users := user.NewInMemoryRepository()
	return repositories{
		beacons:     beacons,
		ads:         ads,
		assignments: assignment.NewInMemoryRepository(ads, logger),
		engagements: engagements,
		logs:        logs,
		messages:    messages,
		users:       users,
		notices:     notification.NewInMemoryRepository(users),
		analytics:   analytics.NewMemoryStore(beacons, ads, engagements, logs, messages),
	}
}

// app is the assembled API process: the HTTP handler plus the background
// components that must be stopped on shutdown.
type app struct {
	handler    http.Handler
	logger     *slog.Logger
	tracer     *tracing.Provider
	database   *sql.DB
	redis      *redis.Client
	subscriber *telemetry.Subscriber
	job        *jobs.DeactivationJob
	upserts    *stats.UpsertStats
}

// newApp wires every component from cfg. Optional backends (Postgres, Redis,
// MQTT, S3, tracing) are only connected when configured.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.tracer, err = tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	cacheMetrics := cache.NewMetrics()
	engagementMetrics := engagement.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	telemetryMetrics := telemetry.NewMetrics()
	notificationMetrics := notification.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		cacheMetrics.Register,
		engagementMetrics.Register,
		jobMetrics.Register,
		telemetryMetrics.Register,
		notificationMetrics.Register,
	} {
		if err = register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	// Storage
	var repos repositories
	healthCfg := api.HealthHandlersConfig{MetricsEnabled: cfg.MetricsEnabled}
	if cfg.DatabaseURL != "" {
		a.database, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repos = postgresRepositories(a.database, logger)
		healthCfg.DBChecker = health.NewDBChecker(a.database)
		logger.Info("using postgres repositories")
	} else {
		repos = memoryRepositories(logger)
		logger.Warn("DATABASE_URL not set, using in-memory repositories; data is lost on restart")
	}

	var (
		cacheStore     cache.Store                = cache.NewMemoryStore()
		rateLimitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	)
	if cfg.RedisURL != "" {
		opts, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", parseErr)
		}
		a.redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cacheStore = cache.NewRedisStore(a.redis)
		rateLimitStore = middleware.NewRedisRateLimitStore(a.redis)
		healthCfg.RedisChecker = health.NewRedisChecker(a.redis)
		logger.Info("using redis cache and rate limiter")
	}

	// Services
	schedules := cache.NewJSON[[]assignment.Scheduled](cacheStore, assignment.ScheduleCacheName, cfg.CacheTTL(), cacheMetrics)
	assignments := assignment.NewService(assignment.ServiceConfig{
		Assignments:    repos.assignments,
		Beacons:        repos.beacons,
		Advertisements: repos.ads,
		Cache:          schedules,
		Logger:         logger,
	})
	recorder := deliverylog.NewRecorder(repos.logs, repos.beacons, repos.ads, deliverylog.NewBroadcaster(logger), logger)
	a.upserts = stats.NewUpsertStats()
	engagements := engagement.NewService(repos.engagements, repos.ads, a.upserts, engagementMetrics, logger)
	users := user.NewService(user.ServiceConfig{
		Repository:   repos.users,
		Mailer:       user.LogMailer{Logger: logger},
		ResetCodeTTL: cfg.OTPTTL(),
		Logger:       logger,
	})
	notifications := notification.NewService(repos.notices, notificationMetrics, logger)
	tokens := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	var media api.MediaStore
	if cfg.S3Configured() {
		uploads, uploadErr := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.S3BucketName,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			MaxSizeMB:       cfg.S3MaxUploadSizeMB,
		})
		if uploadErr != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", uploadErr)
		}
		media = uploads
	} else {
		logger.Info("object storage not configured, media uploads disabled")
	}

	// Device ingestion
	if cfg.MQTTBrokerURL != "" {
		handler := telemetry.NewHandler(cfg.MQTTTopicPrefix, repos.beacons, recorder, telemetryMetrics, logger)
		a.subscriber, err = telemetry.NewSubscriber(telemetry.SubscriberConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Handler:   handler,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		// The client keeps retrying in the background; readiness reports the
		// session state until it connects.
		startCtx, cancel := context.WithTimeout(ctx, telemetry.DefaultConnectTimeout)
		if startErr := a.subscriber.Start(startCtx); startErr != nil {
			logger.Warn("mqtt broker not reachable yet", slog.String("error", startErr.Error()))
		}
		cancel()
		healthCfg.MQTTChecker = health.NewMQTTChecker(a.subscriber)
	}

	if interval := cfg.DeactivateInterval(); interval > 0 {
		a.job = jobs.NewDeactivationJob(jobs.DeactivationJobConfig{
			Interval: interval,
			Logger:   logger,
			Metrics:  jobMetrics,
		}, assignments)
	}

	// HTTP
	paginator := api.NewPaginator(cfg.PageSize)
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	mux := api.NewRouter(api.RouterConfig{
		Beacons: api.NewBeaconHandlers(api.BeaconHandlersConfig{
			Beacons:     repos.beacons,
			Assignments: assignments,
			Logs:        recorder,
			Messages:    repos.messages,
			Paginator:   paginator,
		}),
		Advertisements: api.NewAdvertisementHandlers(api.AdvertisementHandlersConfig{
			Advertisements: repos.ads,
			Assignments:    assignments,
			Logs:           recorder,
			Engagements:    repos.engagements,
			Media:          media,
			Paginator:      paginator,
			Notifier:       notifications,
		}),
		Assignments:    api.NewAssignmentHandlers(assignments, paginator),
		Engagements:    api.NewEngagementHandlers(engagements),
		Logs:           api.NewLogHandlers(recorder, paginator, cfg.CORSAllowedOrigins),
		Messages:       api.NewMessageHandlers(repos.messages, repos.beacons, paginator),
		Analytics:      api.NewAnalyticsHandlers(analytics.NewService(repos.analytics, repos.engagements, repos.ads, logger), paginator),
		Notifications:  api.NewNotificationHandlers(notifications, paginator),
		Auth:           api.NewAuthHandlers(users, tokens),
		Health:         api.NewHealthHandlers(healthCfg),
		Tokens:         tokens,
		RateLimitStore: rateLimitStore,
		Metrics:        httpMetrics,
		Idempotency:    idempotency.NewCacheRepository(cacheStore, idempotency.DefaultExpiry),
		MetricsHandler: metricsHandler,
	})

	// Middleware, outermost first: RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> Profiling
	var handler http.Handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.ProfilingEnabled,
		Environment: cfg.Env,
	})(mux)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if a.tracer.IsEnabled() {
		handler = middleware.Tracing(serviceName)(handler)
	}
	a.handler = middleware.RequestID(handler)

	return a, nil
}

// start launches the background components.
func (a *app) start(ctx context.Context) {
	if a.job != nil {
		a.job.Start(ctx)
	}
}

// close stops background components and releases connections. It is safe to
// call on a partially built app.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.job != nil {
		a.job.Stop()
	}
	if a.subscriber != nil {
		a.subscriber.Stop()
	}
	if a.upserts != nil {
		a.upserts.LogSummary(a.logger, "engagement")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
