// Package main is the entry point for the SpeakLexi API server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speaklexi/backend/internal/auth"
	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/database"
	"github.com/speaklexi/backend/internal/handler"
	"github.com/speaklexi/backend/internal/mailer"
	"github.com/speaklexi/backend/internal/middleware"
	"github.com/speaklexi/backend/internal/pkg/hasher"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/repository"
	"github.com/speaklexi/backend/internal/service"
	"github.com/speaklexi/backend/internal/storage"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting SpeakLexi API",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
	)

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Connect to Redis
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	files, err := storage.NewLocal(cfg.Storage.Root, cfg.Storage.PublicURL)
	if err != nil {
		log.Fatalf("Failed to open media storage: %v", err)
	}

	// Services
	store := repository.NewStore(db.Pool())
	tokens := auth.NewTokens(cfg.Auth)
	passwords := hasher.NewBcrypt(cfg.Accounts.BcryptCost)
	mail := mailer.New(cfg.Mail, logger)

	accountService := service.NewAccountService(store, passwords, mail, tokens, cfg.Accounts, logger)
	recoveryService := service.NewRecoveryService(store, passwords, mail, cfg.Accounts, logger)
	progressService := service.NewProgressService(store, logger)
	lessonService := service.NewLessonService(store, logger)
	gradingService := service.NewGradingService(store, logger)
	multimediaService := service.NewMultimediaService(store, files, logger)

	// Handlers
	var limit func(scope string) handler.Middleware
	if cfg.RateLimit.Enabled {
		limitCfg := middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		}
		limit = func(scope string) handler.Middleware {
			return middleware.RateLimit(redis, scope, limitCfg, logger)
		}
	}
	authHandler := handler.NewAuthHandler(accountService, recoveryService, limit)
	accountHandler := handler.NewAccountHandler(accountService)
	profileHandler := handler.NewProfileHandler(accountService, progressService)
	lessonHandler := handler.NewLessonHandler(lessonService, gradingService)
	multimediaHandler := handler.NewMultimediaHandler(multimediaService)
	authn := middleware.Auth(tokens)

	// Setup router
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	// Health checks
	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(db, redis))
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, map[string]string{"name": "SpeakLexi API", "version": "v1"})
		})

		// Public routes
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/accounts", accountHandler.Routes(authn))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Mount("/profile", profileHandler.ProfileRoutes())
			r.Mount("/progress", profileHandler.ProgressRoutes())
			r.Mount("/lessons", lessonHandler.Routes())
			r.Mount("/multimedia", multimediaHandler.Routes())
		})
	})

	// A path-only public URL means the server itself serves uploaded media.
	if prefix := strings.TrimRight(cfg.Storage.PublicURL, "/") + "/"; strings.HasPrefix(prefix, "/") && prefix != "/" {
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Storage.Root))))
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}

// healthHandler returns a simple health check that always succeeds if the server is running.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	}
}

// readyHandler returns a readiness check that verifies database and Redis connections.
func readyHandler(db *database.Postgres, redis *database.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "component": "database"})
			return
		}

		if err := redis.Ping(ctx); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "component": "redis"})
			return
		}

		response.OK(w, map[string]string{"status": "ok", "database": "connected", "redis": "connected"})
	}
}
