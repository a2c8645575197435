// Package main is the entry point for the LotWatch dashboard server.
//
// It loads configuration, connects the Postgres pool, wires the streaming
// relay client, and starts two long-lived components under one lifecycle:
// the HTTP API and the timelapse capture scheduler.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
// The HTTP server drains in-flight requests; the scheduler stops ticking and
// abandons any detached finalizations still encoding.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"lotwatch/internal/api/handlers"
	"lotwatch/internal/config"
	"lotwatch/internal/core"
	"lotwatch/internal/db"
	"lotwatch/internal/media"
	"lotwatch/internal/metrics"
	"lotwatch/internal/timelapse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	slog.SetDefault(logger)
	logger.Info("lotwatch starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"timelapse_root", cfg.Timelapse.Root,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	cameraRepo := db.NewCameraRepository(pool)
	eventRepo := db.NewEventRepository(pool)

	relay := media.NewRelayClient(cfg.Relay.BaseURL, cfg.Relay.Timeout, logger)
	collector := metrics.NewCollector()

	if err := os.MkdirAll(cfg.Timelapse.Root, 0o755); err != nil {
		return fmt.Errorf("creating timelapse root: %w", err)
	}

	store := timelapse.NewSettingsStore(filepath.Join(cfg.Timelapse.Root, "settings.json"), logger)
	runner := timelapse.NewExecRunner(logger)

	finalizer := timelapse.NewFinalizer(timelapse.FinalizerConfig{
		Root:          cfg.Timelapse.Root,
		FFmpegPath:    cfg.Timelapse.FFmpegPath,
		FrameRate:     cfg.Timelapse.FrameRate,
		EncodeTimeout: cfg.Timelapse.EncodeTimeout,
		CleanupGrace:  cfg.Timelapse.CleanupGrace,
		Directory:     cameraRepo,
		Runner:        runner,
		Logger:        logger,
		Metrics:       collector,
	})

	scheduler := timelapse.NewScheduler(timelapse.SchedulerConfig{
		Store:          store,
		Sources:        relay,
		Directory:      cameraRepo,
		Finalizer:      finalizer,
		Runner:         runner,
		Root:           cfg.Timelapse.Root,
		FFmpegPath:     cfg.Timelapse.FFmpegPath,
		TickInterval:   cfg.Timelapse.TickInterval,
		CaptureTimeout: cfg.Timelapse.CaptureTimeout,
		Logger:         logger,
		Metrics:        collector,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.MetricsHandler = collector.Handler()
	srv.RegisterHealthProbe("database", pool)

	cameraHandler := handlers.NewCameraHandler(cameraRepo, logger)
	eventHandler := handlers.NewEventHandler(eventRepo, srv.Validator, logger)
	timelapseHandler := handlers.NewTimelapseHandler(cfg.Timelapse.Root, store, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { cameraHandler.RegisterRoutes(r) },
		func(r chi.Router) { eventHandler.RegisterRoutes(r) },
		func(r chi.Router) { timelapseHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()
	srv.MountStatic("/timelapses", cfg.Timelapse.Root)

	return serve(ctx, cfg, srv, scheduler, logger)
}

// serve runs the HTTP server and capture scheduler until the context is
// cancelled or either component fails, then shuts both down.
func serve(ctx context.Context, cfg *config.Config, srv *core.Server, scheduler *timelapse.Scheduler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	scheduler.Start(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		scheduler.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newPool builds the pgx connection pool with the configured tuning
// parameters and verifies connectivity before the server starts.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
