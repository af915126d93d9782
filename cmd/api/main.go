package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/background"
	"github.com/mgclub/smartpass/internal/config"
	"github.com/mgclub/smartpass/internal/database"
	"github.com/mgclub/smartpass/internal/handlers"
	middlewareCustom "github.com/mgclub/smartpass/internal/middleware"
	"github.com/mgclub/smartpass/internal/repositories"
	"github.com/mgclub/smartpass/internal/routes"
	"github.com/mgclub/smartpass/internal/services"
	"github.com/mgclub/smartpass/pkg/clock"
	pkghttp "github.com/mgclub/smartpass/pkg/http"
	pkglogger "github.com/mgclub/smartpass/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx := context.Background()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	credRepo := repositories.NewPassCredentialRepository(db.Pool)
	attemptRepo := repositories.NewScanAttemptRepository(db.Pool)

	replayGuard, closeReplay := newReplayGuard(ctx, cfg, credRepo, logger)
	defer closeReplay()

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(attemptRepo, logger, cfg.Pass.CleanupInterval, cfg.Pass.AttemptRetention)

	// Initialize security services
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)

	sealer, err := auth.NewSecretSealer(cfg.Pass.SealKey)
	if err != nil {
		logger.Error("failed to initialize secret sealer", slog.Any("error", err))
		os.Exit(1)
	}

	// Rejected scans are padded so outcomes are indistinguishable by latency
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Pass.RejectDelayMs,
		RandomDelayMs: cfg.Pass.RejectJitterMs,
	})

	var emailService services.EmailService
	if cfg.Email.Enabled {
		emailService, err = services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Pass.Issuer, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailService = services.NewNoopEmailService(logger)
	}

	// Initialize services
	passService := services.NewPassService(
		credRepo,
		attemptRepo,
		replayGuard,
		sealer,
		emailService,
		auditLogger,
		timingDelay,
		clock.New(),
		logger,
		services.PassConfig{
			ToleranceSteps:      cfg.Pass.ToleranceSteps,
			MaxFailedScans:      cfg.Pass.MaxFailedScans,
			MaxFailedScansPerIP: cfg.Pass.MaxFailedScansPerIP,
			FailedScanWindow:    cfg.Pass.FailedScanWindow,
			MaxEnvelopeAge:      cfg.Pass.MaxEnvelopeAge,
		},
	)

	// Initialize handlers
	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}
	passHandler := handlers.NewPassHandler(passService, ipConfig, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, passHandler, tokenManager, db, middlewareCustom.RateLimitConfig{
		Requests: cfg.Pass.ScanRateLimit,
		Window:   cfg.Pass.ScanRateWindow,
	}, ipConfig, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newReplayGuard uses Redis when REDIS_ADDR is set and the credential row otherwise
func newReplayGuard(ctx context.Context, cfg *config.Config, creds repositories.PassCredentialRepository, logger *slog.Logger) (repositories.ReplayGuard, func()) {
	if cfg.Redis.Addr == "" {
		logger.Info("replay guard using postgres")
		return repositories.NewPostgresReplayGuard(creds), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("replay guard using redis", slog.String("addr", cfg.Redis.Addr))
	return repositories.NewRedisReplayGuard(client), func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
}

func parseLevel(level string) slog.Level {
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
