//	@title			MediaVault API
//	@version		1.0
//	@description	Media object storage service with interchangeable storage providers and a relational metadata store.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mediavault/service/internal/auth"
	"github.com/mediavault/service/internal/config"
	"github.com/mediavault/service/internal/db"
	"github.com/mediavault/service/internal/file"
	appMiddleware "github.com/mediavault/service/internal/middleware"
	"github.com/mediavault/service/internal/storage"

	_ "github.com/mediavault/service/docs/swagger"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}
	logger.Info().Msg("database ready")

	// Startup fails hard if any configured provider cannot be constructed.
	registry, err := storage.NewRegistryFromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("object storage init failed")
	}
	urls := storage.NewURLCache(cfg.Storage.URLCacheSize)

	// Wire dependencies: repository → service → handler
	fileRepo := file.NewRepository(pool)
	fileSvc := file.NewService(fileRepo, registry, urls, cfg.Storage.OpTimeout, logger)
	fileHandler := file.NewHandler(fileSvc)

	authHandler := auth.NewHandler(cfg)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", authHandler.IssueToken)

		r.Route("/files", func(r chi.Router) {
			// Read endpoints are public
			r.Get("/", fileHandler.List)
			r.Get("/by-path/{branch}/{year}/{month}", fileHandler.GetByPath)
			r.Get("/{id}", fileHandler.Get)
			r.Get("/{id}/download", fileHandler.Download)
			r.Get("/{id}/url", fileHandler.GetURL)

			// Mutations require a service token
			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
				r.Post("/", fileHandler.Upload)
				r.Patch("/{id}", fileHandler.Rename)
				r.Delete("/{id}", fileHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Strs("providers", cfg.Storage.Providers).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	logger.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}

// newLogger builds the zerolog logger from config values.
func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
