package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

// EventRepository implements behavior.EventRepository on the behavior_events table.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// Append stores a raw event. A second event with the same id is rejected
// with shared.ErrDuplicate.
func (r *EventRepository) Append(ctx context.Context, ev behavior.StoredEvent) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO behavior_events (id, participant_id, event_type, occurred_at, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.ParticipantID, string(ev.Type), ev.OccurredAt.UTC(), payload, ev.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert behavior event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("behavior", "Append", shared.ErrDuplicate, "event "+ev.ID+" already recorded")
	}
	return nil
}

// DeleteOlderThan removes events that occurred before cutoff.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM behavior_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old behavior events: %w", err)
	}
	return tag.RowsAffected(), nil
}
