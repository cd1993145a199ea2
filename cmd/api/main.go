// Package main is the entrypoint for the Pulseboard API server.
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
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pulseboard/pulseboard/internal/analytics"
	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/datefilter"
	"github.com/pulseboard/pulseboard/internal/handler"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/middleware"
	"github.com/pulseboard/pulseboard/internal/repository"
	"github.com/pulseboard/pulseboard/internal/server"
	"github.com/pulseboard/pulseboard/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	presets, err := datefilter.Load(cfg.PresetsFile)
	if err != nil {
		return err
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	defer repo.Close()
	logger.Info("connected to database")

	if err := repo.Migrate(ctx, logger); err != nil {
		return err
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	clickRepo := repository.NewClickEventRepository(repo)
	dashboard := service.NewDashboardService(
		repository.NewContentItemRepository(repo),
		clickRepo,
		cacheClient,
		service.DashboardConfig{
			Location:     loc,
			Presets:      presets,
			CacheTTL:     cfg.DatasetCacheTTL,
			ClickLimit:   cfg.ClickEventLimit,
			FetchTimeout: cfg.FetchTimeout,
		},
		logger,
		recorder,
	)
	publisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)

	health := handler.NewHealthHandler(
		handler.Dependency{Name: "database", Checker: repo},
		handler.Dependency{Name: "redis", Checker: cacheClient},
	)

	srv := server.New(
		setupRouter(routes{
			handler: handler.New(),
			health:  health,
			metrics: handler.NewMetricsHandler(recorder),
			series:  handler.NewSeriesHandler(dashboard, loc, logger),
			clicks:  handler.NewClickHandler(publisher, logger),
			limiter: cacheClient,
			cfg:     cfg,
			logger:  logger,
		}),
		server.Options{
			Port:            cfg.AppPort,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		logger,
	)

	if cfg.AnalyticsWorkerEnabled {
		worker := analytics.NewWorker(cacheClient.Client(), clickRepo, logger, recorder, analytics.WorkerConfig{
			BatchSize: cfg.ClickBatchSize,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("click worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("click-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"timezone", loc.String(),
		"default_preset", presets.Default,
		"worker_enabled", cfg.AnalyticsWorkerEnabled,
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
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
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routes struct {
	handler *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	series  *handler.SeriesHandler
	clicks  *handler.ClickHandler
	limiter middleware.IngestLimiter
	cfg     *config.Config
	logger  *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(rt.logger))
	r.Use(middleware.Recoverer(rt.logger, rt.cfg.IsDevelopment()))

	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: rt.cfg.GetCORSAllowedOrigins()}))

	r.Get("/", rt.handler.Info)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  rt.logger,
		Limiter: rt.limiter,
		Enabled: rt.cfg.IngestRateLimitEnabled,
		Limit:   cache.IngestLimit{Rate: rt.cfg.IngestRPS, Burst: rt.cfg.IngestBurst},
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/presets", rt.series.ListPresets)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantScope)

			r.Get("/series", rt.series.GetSeries)
			r.With(middleware.RateLimitIngest(rateLimitCfg)).Post("/clicks", rt.clicks.Ingest)
		})
	})

	r.NotFound(rt.handler.NotFound)
	r.MethodNotAllowed(rt.handler.MethodNotAllowed)

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
