// Package main is the entrypoint for the pointsledger API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pointsledger/pointsledger/internal/auth"
	"github.com/pointsledger/pointsledger/internal/cache"
	"github.com/pointsledger/pointsledger/internal/config"
	"github.com/pointsledger/pointsledger/internal/handler"
	"github.com/pointsledger/pointsledger/internal/metrics"
	"github.com/pointsledger/pointsledger/internal/middleware"
	"github.com/pointsledger/pointsledger/internal/repository/backend"
	"github.com/pointsledger/pointsledger/internal/seed"
	"github.com/pointsledger/pointsledger/internal/server"
	"github.com/pointsledger/pointsledger/internal/service"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Tenant programs
	tenants, err := loadTenants(cfg.TenantsFile)
	if err != nil {
		logger.Error("failed to load tenants", slog.String("file", cfg.TenantsFile), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("tenants loaded", slog.Int("count", tenants.Len()))

	// Initialize ledger store
	store, err := backend.Open(ctx, backend.Options{
		Kind:            cfg.StoreBackend,
		Migrate:         cfg.MigrateOnStart,
		DatabaseURL:     cfg.DatabaseURL,
		MongoURL:        cfg.MongoURL,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
	})
	if err != nil {
		logger.Error(
			"failed to open store",
			slog.String("backend", cfg.StoreBackend),
			slog.String("error", sanitizeError(err, cfg.DatabaseURL, cfg.MongoURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
			slog.String("mongo_url", redactURL(cfg.MongoURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to store", slog.String("backend", store.Name))

	if cfg.SeedFile != "" {
		if err := seedStore(ctx, store, tenants, cfg.SeedFile, logger); err != nil {
			logger.Error("failed to seed store", slog.String("file", cfg.SeedFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Initialize cache (optional)
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set; rate limiting and gate verdict cache disabled")
	}

	// Access gate
	validator, err := newValidator(cfg, cacheClient)
	if err != nil {
		logger.Error("failed to configure access gate", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.APIKey != "" && !auth.IsGeneratedFormat(cfg.APIKey) {
		logger.Warn("API_KEY does not use the generated format; consider scripts/bootstrap-api-key.go")
	}

	// Initialize services
	metricsRecorder := metrics.NewInMemory()
	pointsService := service.NewPointsService(tenants, store.Store, cfg.StoreTimeout, metricsRecorder)

	// Initialize handlers
	h := handler.New(store.Name)
	var cacheCheck handler.HealthChecker
	if cacheClient != nil {
		cacheCheck = cacheClient
	}
	healthHandler := handler.NewHealthHandler(store.Store, store.Name, cacheCheck)
	pointsHandler := handler.NewPointsHandler(pointsService, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	var limiter middleware.RateLimiter
	if cacheClient != nil {
		limiter = cacheClient
	}
	r := setupRouter(h, healthHandler, pointsHandler, metricsHandler, validator, metricsRecorder, limiter, cfg, logger)

	// Create and run server
	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	healthHandler.WithDrainer(srv)

	// LIFO: the store closes last
	srv.OnShutdown("store", store.Close)
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"store", store.Name,
		"env", cfg.AppEnv,
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadTenants(path string) (*tenant.Registry, error) {
	if path == "" {
		return tenant.DefaultRegistry(), nil
	}
	return tenant.LoadRegistry(path)
}

func seedStore(ctx context.Context, store *backend.Backend, tenants *tenant.Registry, path string, logger *slog.Logger) error {
	fixtures, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, store.Provisioner, tenants, fixtures, logger)
	if err != nil {
		return err
	}
	logger.Info("store seeded", slog.Int("created", res.Created), slog.Int("skipped", res.Skipped))
	return nil
}

// newValidator builds the gate validator. Verdicts for a hashed secret are
// cached in Redis when it is configured; the scope changes with the
// configured secret so rotation invalidates old verdicts.
func newValidator(cfg *config.Config, cacheClient *cache.Cache) (auth.Validator, error) {
	v, err := auth.NewValidator(cfg.APIKey, cfg.APIKeyHash)
	if err != nil {
		return nil, err
	}
	if cacheClient == nil || cfg.APIKeyHash == "" {
		return v, nil
	}
	scope := auth.Fingerprint(cfg.APIKeyHash)
	return middleware.NewCachedValidator(v, cacheClient, scope, cfg.GateCacheTTL), nil
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	pointsHandler *handler.PointsHandler,
	metricsHandler *handler.MetricsHandler,
	validator auth.Validator,
	recorder metrics.Recorder,
	limiter middleware.RateLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(!cfg.IsDevelopment()))
	r.Use(middleware.CORS(cfg.GetCORSAllowedOrigins()))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Hello)

	gateCfg := middleware.GateConfig{
		Logger:      logger,
		Validator:   validator,
		Metrics:     recorder,
		MinDuration: cfg.GateMinDuration,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:                logger,
		Limiter:               limiter,
		IPEnabled:             cfg.RateLimitEnabled,
		IPRPS:                 cfg.RateLimitRPS,
		IPBurst:               cfg.RateLimitBurst,
		TenantWritesPerMinute: cfg.TenantWriteLimitPerMinute,
		TenantWriteBurst:      cfg.TenantWriteBurst,
	}

	// API v1 routes (require the shared secret)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Use(middleware.Gate(gateCfg))

		r.Get("/tenants", pointsHandler.ListTenants)

		r.Route("/tenants/{tenantID}/points", func(r chi.Router) {
			r.Get("/", pointsHandler.GetBalance)
			r.Get("/total", pointsHandler.GetTotals)

			writeLimit := middleware.RateLimitTenantWrites(rateLimitCfg, middleware.TenantFromRoute)
			r.With(writeLimit).Put("/", pointsHandler.Grant)
			r.With(writeLimit).Post("/", pointsHandler.Grant)
		})
	})

	// Query-addressed routes kept for existing integrations
	r.Route("/api/points", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Use(middleware.Gate(gateCfg))

		r.Get("/", pointsHandler.LegacyGetBalance)
		r.With(middleware.RateLimitTenantWrites(rateLimitCfg, middleware.TenantFromQuery("companyId"))).
			Put("/", pointsHandler.LegacyGrant)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
