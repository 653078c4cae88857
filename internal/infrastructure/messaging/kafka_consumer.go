// Package messaging consumes learner events from Kafka.
package messaging

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alem-hub/behavior-interpreter/internal/application/command"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/internal/interface/wire"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ConsumerConfig contains the Kafka reader settings.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration

	// RedeliveryDelay is the pause before a message is handled again after
	// the profile store was unavailable. Default 5s.
	RedeliveryDelay time.Duration
}

// Validate validates the configuration.
func (c ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("kafka: topic must not be empty")
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return errors.New("kafka: consumer group must not be empty")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSUMER
// ══════════════════════════════════════════════════════════════════════════════

// messageReader is the part of *kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IngestHandler runs one decoded event.
type IngestHandler interface {
	Handle(ctx context.Context, cmd command.IngestEventCommand) (*command.IngestEventResult, error)
}

// EventConsumer feeds Kafka messages to the ingest command. A message is
// committed once handled; malformed messages are logged and committed too.
// A message whose handling failed because the context ended is left
// uncommitted and will be redelivered. While the profile store is
// unavailable the same message is handled again every RedeliveryDelay, and
// nothing after it on the partition is fetched.
type EventConsumer struct {
	cfg     ConsumerConfig
	reader  messageReader
	handler IngestHandler
	log     *logger.Logger
}

// NewEventConsumer creates a consumer group reader for cfg.Topic.
func NewEventConsumer(cfg ConsumerConfig, handler IngestHandler, log *logger.Logger) (*EventConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newEventConsumer(cfg, reader, handler, log), nil
}

func newEventConsumer(cfg ConsumerConfig, reader messageReader, handler IngestHandler, log *logger.Logger) *EventConsumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EventConsumer{
		cfg:     cfg,
		reader:  reader,
		handler: handler,
		log:     log.With(logger.Component("kafka-consumer"), logger.String("topic", cfg.Topic)),
	}
}

// Close shuts down the underlying reader.
func (c *EventConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *EventConsumer) Run(ctx context.Context) error {
	c.log.Info("consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.String("brokers", strings.Join(c.cfg.Brokers, ",")),
	)
	defer c.log.Info("consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("fetch failed", logger.Err(err))
			continue
		}

		action := c.handle(ctx, msg)
		for action == redeliver {
			// Later offsets of this partition must not be committed past an
			// event that was never interpreted, so the partition waits here.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RedeliveryDelay):
			}
			action = c.handle(ctx, msg)
		}
		if action == leaveUncommitted {
			continue
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error("commit failed", logger.Err(err), logger.Int64("offset", msg.Offset))
			}
		}
		commitCancel()
	}
}

type handleAction int

const (
	commit handleAction = iota
	leaveUncommitted
	redeliver
)

// handle processes one message and reports what to do with its offset.
func (c *EventConsumer) handle(ctx context.Context, msg kafka.Message) handleAction {
	log := c.log.With(logger.Int("partition", msg.Partition), logger.Int64("offset", msg.Offset))

	decoded, err := wire.Decode(msg.Value)
	if err != nil {
		log.Warn("skipping malformed message", logger.Err(err))
		return commit
	}

	_, err = c.handler.Handle(ctx, command.IngestEventCommand{
		EventID:    decoded.EventID,
		Event:      decoded.Event,
		RawPayload: decoded.EventData,
		Source:     "kafka",
	})
	switch {
	case err == nil:
		return commit
	case ctx.Err() != nil:
		return leaveUncommitted
	case shared.IsMalformed(err):
		log.Warn("skipping malformed message", logger.Err(err))
	case shared.IsStoreUnavailable(err):
		log.Warn("profile store unavailable, message will be handled again",
			logger.ParticipantID(decoded.Event.ParticipantID),
			logger.Duration("delay", c.cfg.RedeliveryDelay),
			logger.Err(err),
		)
		return redeliver
	default:
		log.Error("event handling failed",
			logger.ParticipantID(decoded.Event.ParticipantID),
			logger.EventType(decoded.Event.Type().String()),
			logger.Err(err),
		)
	}
	return commit
}
