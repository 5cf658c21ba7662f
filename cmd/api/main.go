// Package main is the entrypoint for the Driveline API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/driveline/driveline/internal/cache"
	"github.com/driveline/driveline/internal/classify"
	"github.com/driveline/driveline/internal/config"
	"github.com/driveline/driveline/internal/email"
	"github.com/driveline/driveline/internal/handler"
	"github.com/driveline/driveline/internal/history"
	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/metrics"
	"github.com/driveline/driveline/internal/middleware"
	"github.com/driveline/driveline/internal/obd"
	"github.com/driveline/driveline/internal/orchestrate"
	"github.com/driveline/driveline/internal/repository"
	"github.com/driveline/driveline/internal/scan"
	"github.com/driveline/driveline/internal/server"
	"github.com/driveline/driveline/internal/service"
	"github.com/driveline/driveline/internal/vin"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Postgres
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Redis
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Scanner. Not connecting at boot; the adapter may not be plugged in.
	scanner := obd.NewScanner(cfg.ScannerPort, cfg.ScannerBaud, logger)

	// Outbound clients
	llmClient := llm.NewClient(llm.DefaultBaseURL, cfg.TogetherAPIKey, cfg.TogetherModel, logger)
	if !cfg.LLMEnabled() {
		logger.Warn("TOGETHER_API_KEY not set, chat endpoints will be unavailable")
	}
	vinClient := vin.NewClient(vin.DefaultBaseURL, cacheClient, logger)
	vinClient.SetMetrics(recorder)
	classifier := classify.New(cacheClient, llmClient, logger)
	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	}, logger)

	// Chat history pipeline
	publisher := history.NewPublisher(cacheClient.Client(), logger, recorder)
	historyWorker := history.NewWorker(cacheClient.Client(), repo, logger, history.NewConsumerID(), recorder)
	go func() {
		if err := historyWorker.Run(ctx); err != nil {
			logger.Error("history worker stopped", "error", err)
		}
	}()

	// Background scan worker
	scanWorker := scan.NewWorker(scanner, cacheClient, logger, recorder)
	go func() {
		if err := scanWorker.Run(ctx); err != nil {
			logger.Error("scan worker stopped", "error", err)
		}
	}()

	// Services
	authService := service.NewAuthService(
		repo, cacheClient, mailer,
		cfg.JWTSecret, cfg.FrontendURL,
		cfg.MagicLinkRateLimit, cfg.MagicLinkRateWindow,
		recorder, logger,
	)
	vehicleService := service.NewVehicleService(repo, vinClient, logger)
	chatService := service.NewChatService(llmClient, classifier, repo, vehicleService, publisher, recorder, logger)
	diagService := service.NewDiagnosticsService(scanner, scanWorker, cacheClient, repo, vinClient, logger)
	orchestrator := orchestrate.New(llmClient, scanner, repo, repo, vinClient, logger)

	// Handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(recorder)
	authHandler := handler.NewAuthHandler(authService, cfg.FrontendURL, logger)
	vehicleHandler := handler.NewVehicleHandler(vehicleService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	diagHandler := handler.NewDiagnosticsHandler(diagService, logger)
	diagnoseHandler := handler.NewDiagnoseHandler(orchestrator, repo, logger)

	r := setupRouter(routerDeps{
		cfg:             cfg,
		logger:          logger,
		authService:     authService,
		healthHandler:   healthHandler,
		metricsHandler:  metricsHandler,
		authHandler:     authHandler,
		vehicleHandler:  vehicleHandler,
		chatHandler:     chatHandler,
		diagHandler:     diagHandler,
		diagnoseHandler: diagnoseHandler,
	})

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Shutdown hooks run LIFO after the HTTP server stops accepting.
	srv.OnShutdown("history worker", historyWorker.Shutdown)
	srv.OnShutdown("scan worker", scanWorker.Shutdown)
	srv.OnShutdown("scanner", func(context.Context) error {
		return scanner.Disconnect()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"llm_enabled", cfg.LLMEnabled(),
		"smtp_enabled", mailer.Enabled(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type routerDeps struct {
	cfg             *config.Config
	logger          *slog.Logger
	authService     *service.AuthService
	healthHandler   *handler.HealthHandler
	metricsHandler  *handler.MetricsHandler
	authHandler     *handler.AuthHandler
	vehicleHandler  *handler.VehicleHandler
	chatHandler     *handler.ChatHandler
	diagHandler     *handler.DiagnosticsHandler
	diagnoseHandler *handler.DiagnoseHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: deps.cfg.IsDevelopment(),
	}))
	r.Use(middleware.MaxBodySize(deps.cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = deps.cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Probes and diagnostics, no auth
	r.Get("/healthz", deps.healthHandler.Healthz)
	r.Get("/readyz", deps.healthHandler.Readyz)
	r.Get("/metrics", deps.metricsHandler.Metrics)
	r.Get("/", handler.Root)

	requireAuth := middleware.RequireAuth(deps.authService, deps.logger)
	optionalAuth := middleware.OptionalAuth(deps.authService)

	r.Route("/api", func(r chi.Router) {
		// Sign-in flow
		r.Route("/auth", func(r chi.Router) {
			r.Post("/magic-link", deps.authHandler.RequestMagicLink)
			r.Post("/verify", deps.authHandler.Verify)
			r.Get("/verify", deps.authHandler.VerifyRedirect)
			r.With(optionalAuth).Post("/logout", deps.authHandler.Logout)
			r.With(optionalAuth).Get("/status", deps.authHandler.Status)
			r.With(requireAuth).Get("/me", deps.authHandler.Me)
		})

		// Vehicles
		r.Route("/vehicles", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", deps.vehicleHandler.Register)
			r.Get("/", deps.vehicleHandler.List)
			r.Post("/decode", deps.vehicleHandler.DecodeVIN)
			r.Get("/primary", deps.vehicleHandler.Primary)
			r.Get("/primary/info", deps.vehicleHandler.PrimaryInfo)
			r.Get("/{id}", deps.vehicleHandler.Get)
			r.Put("/{id}/primary", deps.vehicleHandler.SetPrimary)
			r.Delete("/{id}", deps.vehicleHandler.Delete)
		})

		// Chat
		r.Route("/chat", func(r chi.Router) {
			r.With(optionalAuth).Post("/quick", deps.chatHandler.QuickAsk)
			r.Get("/stats", deps.chatHandler.Stats)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", deps.chatHandler.Ask)
				r.Get("/history", deps.chatHandler.History)
			})
		})

		// Scanner. The adapter is process-wide hardware, not per-user
		// data, but mutation still requires a session.
		r.Route("/scanner", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/ports", deps.diagHandler.Ports)
			r.Post("/connect", deps.diagHandler.Connect)
			r.Post("/disconnect", deps.diagHandler.Disconnect)
			r.Get("/status", deps.diagHandler.Status)
			r.Get("/sensors", deps.diagHandler.Sensors)
			r.Get("/sensors/{pid}", deps.diagHandler.Sensor)
			r.Get("/dtc", deps.diagHandler.DTCs)
			r.Get("/vehicle-info", deps.diagHandler.VehicleInfo)
			r.Post("/scan", deps.diagHandler.StartScan)
			r.Get("/scan", deps.diagHandler.ListScans)
			r.Get("/scan/{id}", deps.diagHandler.GetScan)
		})

		// Trouble code lookup and manual data entry, no auth
		r.Get("/dtc/{code}", deps.diagHandler.LookupDTC)
		r.Post("/diagnostics", deps.diagHandler.DescribeManual)
		r.Get("/manual", deps.vehicleHandler.BasicDecode)

		// Saved diagnostic sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", deps.diagHandler.SaveSession)
			r.Get("/", deps.diagHandler.ListSessions)
			r.Get("/{id}", deps.diagHandler.GetSession)
		})

		// Guided diagnosis
		r.Route("/diagnose", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", deps.diagnoseHandler.Diagnose)
			r.Get("/", deps.diagnoseHandler.List)
			r.Get("/{id}", deps.diagnoseHandler.Get)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
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
