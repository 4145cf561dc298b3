package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/example/taxi-dispatch/internal/activation"
	"github.com/example/taxi-dispatch/internal/auth"
	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/config"
	"github.com/example/taxi-dispatch/internal/dispatch"
	"github.com/example/taxi-dispatch/internal/eligibility"
	"github.com/example/taxi-dispatch/internal/eta"
	httpapi "github.com/example/taxi-dispatch/internal/http"
	"github.com/example/taxi-dispatch/internal/ingest"
	"github.com/example/taxi-dispatch/internal/logging"
	"github.com/example/taxi-dispatch/internal/rides"
	"github.com/example/taxi-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if err := applyMigrations(ps); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		store = ps
	} else {
		logger.Warn("PG_DSN unset, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var publisher rides.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	clk := clock.NewSystem()
	registry := dispatch.NewRegistry()
	fanout := dispatch.NewFanout(registry, logger)
	gate := eligibility.NewGate(store, clk, logger)
	allocator := activation.NewAllocator(store, store, clk, logger).
		WithRange(cfg.CodeRangeMax).
		WithValidity(cfg.ActivationValidity)

	estimator := &eta.Estimator{DefaultSpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
		estimator.Cache = eta.NewCache(30 * time.Second)
	}

	rideSvc := &rides.Service{
		Store:        store,
		Gate:         gate,
		Fanout:       fanout,
		ETA:          estimator,
		Publisher:    publisher,
		Clock:        clk,
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
		NearbyLimit:  cfg.NearbyLimit,
	}

	tokens := auth.NewTokenMap(store)
	api := httpapi.NewServer(rideSvc, allocator, tokens, store, registry, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("taxi-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shut down cleanly")
}

func applyMigrations(ps *storage.PostgresStore) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = ps.DB().Exec(string(b))
	return err
}
