package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/behavior-interpreter/config"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run only the Kafka consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsume(cmd.Context())
	},
}

func runConsume(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return errors.New("KAFKA_ENABLED must be true to run the consumer")
	}
	log := setupLogger(cfg)
	log.Info("starting Kafka consumer",
		logger.String("version", cfg.App.Version),
		logger.String("topic", cfg.Kafka.Topic),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	consumer, err := newConsumer(cfg, a, log)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	return ignoreCanceled(consumer.Run(ctx))
}
