package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capsule-backend/internal/config"
	"capsule-backend/internal/handlers"
	"capsule-backend/internal/middleware"
	"capsule-backend/internal/repository"
	"capsule-backend/internal/services"
	"capsule-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database. The pool is the single explicitly-owned database
	// resource: created once here, reused for the process lifetime, closed on
	// shutdown.
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	capsuleRepo := repository.NewCapsuleRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize object storage
	objectStore, err := storage.NewS3Store(context.Background(), cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object store")
	}

	// Initialize services
	mailer, err := services.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create mailer")
	}
	clock := services.RealClock{}
	scheduler := services.NewScheduler(
		notificationRepo,
		capsuleRepo,
		mailer,
		clock,
		cfg.Scheduler.SweepInterval(),
		cfg.Scheduler.Workers,
		cfg.App.BaseURL,
	)
	capsuleService := services.NewCapsuleService(
		capsuleRepo,
		objectStore,
		scheduler,
		services.Limits{
			MaxFileSizeBytes: cfg.Capsule.MaxFileSizeBytes,
			MaxFilesPerKind:  cfg.Capsule.MaxFilesPerKind,
		},
		clock,
	)

	// Initialize handlers
	capsuleHandler := handlers.NewCapsuleHandler(capsuleService, clock)
	profileHandler := handlers.NewProfileHandler(capsuleService, clock)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public read surfaces
		r.Get("/capsules/{id}", capsuleHandler.GetCapsule)
		r.Get("/files", capsuleHandler.GetFile)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
			r.Post("/capsules", capsuleHandler.CreateCapsule)
			r.Get("/profiles/{id}", profileHandler.GetProfile)
			r.Get("/profiles/{id}/{email}", profileHandler.GetProfileWithReceived)
		})
	})

	// Start the notification scheduler. It runs on its own cadence,
	// independent of request handling, and recovers overdue notifications on
	// its first sweep.
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(schedulerCtx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Scheduler stopped")
		}
	}()

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop the scheduler; pending notifications stay in the store and are
	// picked up on the next start.
	stopScheduler()
	<-schedulerDone

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
