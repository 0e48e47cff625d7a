package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"reconciler/internal/contact/events"
	"reconciler/internal/contact/handler"
	"reconciler/internal/contact/lock"
	"reconciler/internal/contact/metrics"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	httpapi "reconciler/internal/http"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/httpserver"
	"reconciler/internal/platform/logger"
	platformmetrics "reconciler/internal/platform/metrics"
	"reconciler/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("reconciler exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	backend, err := store.Open(ctx, cfg.Database, cfg.Identify.TxTimeout)
	if err != nil {
		return fmt.Errorf("open contact store: %w", err)
	}
	defer backend.Close()
	log.Info("contact store ready", "driver", backend.Driver)

	publisher, closePublisher, err := events.Open(ctx, cfg.Events, log)
	if err != nil {
		return fmt.Errorf("open event publisher: %w", err)
	}
	defer closePublisher()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithEventPublisher(publisher),
		service.WithEmptyPolicy(cfg.Identify.EmptyPolicy),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithIdentifierLocker(lock.NewRedisLocker(
			redisClient.Client,
			lock.WithTTL(cfg.Redis.LockTTL),
			lock.WithWait(cfg.Redis.LockWait),
		)))
		log.Info("identifier lock enabled", "backend", "redis")
	}

	svc, err := service.New(backend.Tx, opts...)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        platformmetrics.New(),
	}, handler.New(svc, backend, log))
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting reconciler", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
