// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/behavior-interpreter/internal/application/interpreter"
	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
	"github.com/alem-hub/behavior-interpreter/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGEST EVENT COMMAND
// Records a raw learner event and runs it through the interpreter.
// Shared by the HTTP endpoint and the Kafka consumer.
// ══════════════════════════════════════════════════════════════════════════════

// IngestEventCommand contains one inbound event.
type IngestEventCommand struct {
	// EventID is the producer-assigned id (UUID). Optional; when set, a repeated
	// delivery of the same id is recorded once and interpreted once.
	EventID string

	// Event is the decoded, validated event.
	Event behavior.Event

	// RawPayload is the event_data exactly as received. Encoded from Event
	// when empty.
	RawPayload json.RawMessage

	// Source names the transport ("http", "kafka") for logging.
	Source string
}

// Validate validates the command.
func (c IngestEventCommand) Validate() error {
	if c.EventID != "" {
		if _, err := uuid.Parse(c.EventID); err != nil {
			return shared.Malformed("Ingest", "event_id", "must be a UUID")
		}
	}
	return c.Event.Validate()
}

// IngestEventResult contains the result of ingesting an event.
type IngestEventResult struct {
	// EventID is the id under which the raw event was recorded.
	EventID string

	// Persisted is false when the raw event could not be stored.
	Persisted bool

	// Duplicate is true when the event id was already recorded. Duplicates
	// are not interpreted again.
	Duplicate bool

	// Outcome is what the interpreter decided.
	Outcome interpreter.Outcome

	// ReceivedAt is when the event was accepted.
	ReceivedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EventInterpreter is the part of interpreter.Interpreter used by the handler.
type EventInterpreter interface {
	Interpret(ctx context.Context, ev behavior.Event) (interpreter.Outcome, error)
}

// ProfileInvalidator drops cached profiles.
type ProfileInvalidator interface {
	Invalidate(participantID string)
}

// IngestEventHandler handles the IngestEventCommand.
type IngestEventHandler struct {
	events      behavior.EventRepository
	interpreter EventInterpreter
	profiles    ProfileInvalidator
	retrier     *retry.Retrier
	log         *logger.Logger
	now         func() time.Time
}

// IngestEventHandlerConfig contains configuration for the handler.
type IngestEventHandlerConfig struct {
	// RetryStoreOutages retries interpretation while the profile store is
	// unavailable. Nothing has fired in that case, so a retry is safe.
	RetryStoreOutages bool
}

// NewIngestEventHandler creates a new IngestEventHandler.
func NewIngestEventHandler(
	events behavior.EventRepository,
	interp EventInterpreter,
	profiles ProfileInvalidator,
	log *logger.Logger,
	config IngestEventHandlerConfig,
) *IngestEventHandler {
	if log == nil {
		log = logger.Nop()
	}
	h := &IngestEventHandler{
		events:      events,
		interpreter: interp,
		profiles:    profiles,
		log:         log.With(logger.Component("ingest")),
		now:         time.Now,
	}

	if config.RetryStoreOutages {
		h.retrier = retry.IngestRetrier(shared.IsStoreUnavailable, func(attempt int, err error, delay time.Duration) {
			h.log.Warn("profile store unavailable, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		})
	} else {
		h.retrier = retry.New(retry.WithMaxAttempts(1))
	}
	return h
}

// Handle executes the ingest command.
func (h *IngestEventHandler) Handle(ctx context.Context, cmd IngestEventCommand) (*IngestEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ev := cmd.Event
	result := &IngestEventResult{
		EventID:    cmd.EventID,
		ReceivedAt: h.now().UTC(),
	}
	if result.EventID == "" {
		result.EventID = uuid.NewString()
	}

	log := h.log.With(
		logger.EventID(result.EventID),
		logger.ParticipantID(ev.ParticipantID),
		logger.EventType(ev.Type().String()),
		logger.String("source", cmd.Source),
	)

	if err := h.persist(ctx, cmd, result); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			log.Info("duplicate event ignored")
			result.Duplicate = true
			result.Persisted = true
			return result, nil
		}
		// The raw log is best effort; interpretation does not depend on it.
		log.Error("failed to persist raw event", logger.Err(err))
	}

	if result.Persisted && ev.Type() == behavior.EventTypeTestSubmission && h.profiles != nil {
		h.profiles.Invalidate(ev.ParticipantID)
	}

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		out, err := h.interpreter.Interpret(ctx, ev)
		result.Outcome = out
		return err
	})
	if err != nil {
		return result, err
	}

	log.Debug("event ingested",
		logger.Bool("frustrated", result.Outcome.Frustrated),
		logger.Bool("confused", result.Outcome.Confused),
		logger.Bool("ignored", result.Outcome.Ignored),
	)
	return result, nil
}

func (h *IngestEventHandler) persist(ctx context.Context, cmd IngestEventCommand, result *IngestEventResult) error {
	if h.events == nil {
		return nil
	}

	payload := []byte(cmd.RawPayload)
	if len(strings.TrimSpace(string(payload))) == 0 {
		encoded, err := json.Marshal(cmd.Event.Payload)
		if err != nil {
			return err
		}
		payload = encoded
	}

	err := h.events.Append(ctx, behavior.StoredEvent{
		ID:            result.EventID,
		ParticipantID: cmd.Event.ParticipantID,
		Type:          cmd.Event.Type(),
		OccurredAt:    cmd.Event.Timestamp,
		Payload:       payload,
		ReceivedAt:    result.ReceivedAt,
	})
	if err == nil {
		result.Persisted = true
	}
	return err
}
