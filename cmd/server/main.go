package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/ensemblehq/chairfill/internal/config"
	"github.com/ensemblehq/chairfill/internal/handler"
	"github.com/ensemblehq/chairfill/internal/logger"
	"github.com/ensemblehq/chairfill/internal/metrics"
	"github.com/ensemblehq/chairfill/internal/middleware"
	"github.com/ensemblehq/chairfill/internal/notify"
	"github.com/ensemblehq/chairfill/internal/progress"
	"github.com/ensemblehq/chairfill/internal/service"
	"github.com/ensemblehq/chairfill/internal/tenant"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = zlog.Sync() }()

	// Tenant connection-pool registry; stores open lazily on first use
	registry := tenant.NewRegistry(cfg.TenantDSNs, cfg.TenantIdleTimeout, zlog)
	registry.Start(context.Background())
	zlog.Infow("tenant registry started", "tenants", len(cfg.TenantDSNs))

	m := metrics.New()

	// Send progress tracker: advisory, bounded, entries expire after 5 minutes
	tracker := progress.NewTracker(1024, 5*time.Minute)

	// Notification transport is an external collaborator; the log notifier
	// stands in until one is wired.
	notifier := notify.NewLogNotifier(zlog)

	staffing := service.NewStaffingService(zlog, notifier, m, tracker, cfg.DefaultResponseWindow)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics
	r.Handle("/metrics", m.Handler())

	// Initialize handlers
	h := handler.New(registry, staffing, tracker, cfg, zlog)

	// Musician response endpoints (token is the credential, no auth)
	r.Route("/respond/{tenantId}/{token}", func(r chi.Router) {
		r.Get("/", h.ValidateToken)
		r.Post("/", h.SubmitResponse)
	})

	// Scheduled sweep trigger (shared secret)
	r.Post("/internal/sweep", h.Sweep)

	// Operator API (tenant-scoped)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Tenant(registry))

		r.Route("/needs/{needId}", func(r chi.Router) {
			r.Post("/send", h.SendRequests)
			r.Get("/preview", h.PreviewNeed)
			r.Get("/progress", h.GetSendProgress)
			r.Get("/requests", h.ListNeedRequests)
		})

		r.Get("/projects/{projectId}/preview", h.PreviewProject)

		r.Route("/requests/{requestId}", func(r chi.Router) {
			r.Post("/cancel", h.CancelRequest)
			r.Get("/communications", h.ListRequestCommunications)
		})

		r.Get("/settings", h.ListSettings)
		r.Put("/settings/{key}", h.PutSetting)
	})

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zlog.Infow("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Close tenant pools last so in-flight requests finish first
	registry.Stop()

	zlog.Info("server stopped")
}
