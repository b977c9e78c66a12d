package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/access"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/auth"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/cache"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/database"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/middleware"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/server"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/store"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Str("identity_provider", cfg.Identity.Provider).
		Msg("Starting analytics API server")

	monitoring.Init()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	pg := store.NewPostgres(db.Pool, store.NewBreaker("postgres", cfg.Breaker), cfg.Database.QueryTimeout)

	deps := server.Deps{DB: db}

	var redis *cache.Redis
	if cfg.Redis.Enabled {
		redis, err = cache.New(ctx, cfg.Redis.URL)
		if err != nil {
			// reference data falls back to the database
			log.Warn().Err(err).Msg("Redis unavailable, directory cache disabled")
			redis = nil
		} else {
			defer redis.Close()
			deps.Cache = redis
		}
	}
	directory := cache.NewDirectory(pg, redis, cfg.Redis.CacheTTL)

	deps.Analytics = analytics.NewService(pg, directory, access.NewGuard(pg))

	if cfg.Identity.Provider == config.ProviderLocal {
		deps.Auth = auth.NewService(pg, &cfg.JWT)
	}

	deps.Authenticator, err = middleware.NewAuthenticator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure token verification")
	}

	if m := cfg.Monitoring; m.PrometheusEnabled && m.PrometheusPort > 0 {
		go startMetricsServer(m.PrometheusPort)
	}

	srv := server.NewAPIServer(cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
