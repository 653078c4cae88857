package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/behavior-interpreter/config"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/messaging"
	httpserver "github.com/alem-hub/behavior-interpreter/internal/interface/http"
	"github.com/alem-hub/behavior-interpreter/internal/interface/http/handlers"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the retention scheduler and, if enabled, the Kafka consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	log.Info("starting behavior interpreter", logger.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.SetTimeout(3 * time.Second)
	health.AddCheck("postgres", handlers.NewPingCheck(a.db))
	if a.redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(a.redis))
	}
	health.AddCheck("profile-store", func(context.Context) error {
		if a.store.BreakerState() == circuitbreaker.StateOpen {
			return errors.New("circuit open")
		}
		return nil
	})

	server, err := httpserver.NewServer(httpserver.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		APIKeyHeader:   cfg.HTTP.APIKeyHeader,
		APIKeyHashes:   cfg.HTTP.APIKeyHashes,
	}, httpserver.Dependencies{
		Ingest:        a.ingest,
		Knowledge:     a.knowledge,
		HealthChecker: health,
		Metrics:       a.metrics,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// KAFKA CONSUMER (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var consumer *messaging.EventConsumer
	if cfg.Kafka.Enabled {
		consumer, err = newConsumer(cfg, a, log)
		if err != nil {
			return err
		}
		defer func() { _ = consumer.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if consumer != nil {
		g.Go(func() error { return ignoreCanceled(consumer.Run(gctx)) })
	}

	err = g.Wait()
	log.Info("behavior interpreter stopped")
	return err
}

func newConsumer(cfg *config.Config, a *app, log *logger.Logger) (*messaging.EventConsumer, error) {
	consumer, err := messaging.NewEventConsumer(messaging.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		PollTimeout: cfg.Kafka.PollTimeout,

		RedeliveryDelay: cfg.Kafka.RedeliveryDelay,
	}, a.ingest, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return consumer, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
