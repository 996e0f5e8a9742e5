package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DukeRupert/darkroom/internal"
	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/handler"
	"github.com/DukeRupert/darkroom/internal/maintenance"
	"github.com/DukeRupert/darkroom/internal/metrics"
	"github.com/DukeRupert/darkroom/internal/middleware"
	"github.com/DukeRupert/darkroom/internal/repository"
	"github.com/DukeRupert/darkroom/internal/service"
	"github.com/DukeRupert/darkroom/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	tokens, err := auth.NewTokenIssuer(cfg.AuthSecret)
	if err != nil {
		return fmt.Errorf("token issuer initialization failed: %w", err)
	}

	// Initialize storage
	router, err := storage.NewRouterFromConfig(cfg.StorageConfig(tokens), logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize database (optional)
	var (
		records service.PhotoRecords
		dates   handler.DateRepairRunner
	)
	if cfg.HasDatabase() {
		db, err := repository.Open(ctx, cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := internal.RunMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database ready")

		records, dates = newPhotoStores(db, logger)
	} else {
		logger.Warn("DATABASE_URL not set; photo records and date repair are disabled")
	}

	// Initialize services
	photos := service.NewPhotoAssetService(router, service.NewImagingProcessor(), records, logger)

	credentials := auth.NewCredentials(cfg.Accounts()...)
	if !credentials.Enabled() {
		logger.Warn("no sign-in accounts configured")
	}

	// Initialize middleware
	isSecure := cfg.IsSecure()
	authMw := middleware.NewAuthMiddleware(tokens, logger, isSecure)
	rateLimiter := middleware.NewAuthRateLimiter(logger)
	defer rateLimiter.Stop()
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure, storageOrigins(router)...)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)

	// Initialize handlers
	var local handler.ObjectWriter
	if a, ok := router.Adapter(storage.BackendLocalFS); ok {
		if ls, ok := a.(*storage.LocalStorage); ok {
			local = ls
		}
	}
	storageHandler := handler.NewStorageHandler(router, tokens, local, cfg.MaxUploadSize, logger)

	downloadHandler, err := handler.NewDownloadHandler(&http.Client{Timeout: cfg.DownloadTimeout}, cfg.BaseURL, logger)
	if err != nil {
		return fmt.Errorf("download handler initialization failed: %w", err)
	}
	downloadHandler.AllowHosts(cfg.DownloadAllowedHosts...)

	authHandler := handler.NewAuthHandler(handler.AuthConfig{
		Credentials: credentials,
		Sessions:    tokens,
		Throttle:    rateLimiter,
		IsSecure:    isSecure,
		Logger:      logger,
	})

	adminHandler := handler.NewAdminHandler(handler.AdminConfig{
		Photos:          photos,
		Storage:         router,
		Dates:           dates,
		DefaultStripGPS: cfg.StripGPSData,
		Logger:          logger,
	})

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Local uploads
	if cfg.HasLocalFSStorage() {
		prefix := strings.TrimSuffix(cfg.LocalFSBaseURL, "/") + "/"
		uploads := http.FileServer(http.Dir(cfg.LocalFSStorageDir))
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, uploads))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Unknown routes
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	// Metrics
	mux.Handle("GET /metrics", metricsAuth.Handler(metrics.Handler()))

	// Create middleware stacks for protected routes
	requireAdmin := middleware.Stack(authMw.WithUser, authMw.RequireAdmin)

	authHandler.RegisterRoutes(mux, rateLimiter.LimitSignIn)
	storageHandler.RegisterRoutes(mux, authMw.WithUser)
	downloadHandler.RegisterRoutes(mux)
	adminHandler.RegisterRoutes(mux, requireAdmin)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: metrics.Middleware(loggingMw.Handler(securityMw.Handler(mux))),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started",
			"address", server.Addr,
			"env", cfg.Env,
			"storage", router.CurrentBackend().Label(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newPhotoStores wires the database-backed photo record store and date
// repairer.
func newPhotoStores(db *sql.DB, logger *slog.Logger) (service.PhotoRecords, handler.DateRepairRunner) {
	repo := repository.NewPhotoRepository(db)
	return repo, maintenance.NewDateRepairer(repo, logger)
}

// storageOrigins lists the absolute base URLs of every configured backend
// for the Content-Security-Policy.
func storageOrigins(router *storage.Router) []string {
	var origins []string
	for _, b := range router.Configured() {
		a, _ := router.Adapter(b)
		origins = append(origins, a.BaseURLs()...)
	}
	return origins
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
