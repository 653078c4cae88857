package behavior

import (
	"context"
	"time"
)

// ProfileStore is the durable source of participant history.
// Implemented by the infrastructure layer.
type ProfileStore interface {
	// Fetch returns the current profile of a participant.
	// Returns shared.ErrProfileNotFound for a participant the store has never
	// seen. Any other error means the store could not be read.
	Fetch(ctx context.Context, participantID string) (*UserProfile, error)
}

// KnowledgeModelUpdater applies a mastery update for a participant/topic pair.
type KnowledgeModelUpdater interface {
	// Update records one graded outcome for the topic.
	Update(ctx context.Context, participantID, topicID string, passed bool) error
}

// UserStateNotifier records and broadcasts affective state episodes.
type UserStateNotifier interface {
	// NotifyFrustration reports a frustration episode for the participant.
	NotifyFrustration(ctx context.Context, participantID string) error

	// NotifyConfusion reports a confusion episode for the participant.
	NotifyConfusion(ctx context.Context, participantID string) error
}

// StoredEvent is a raw event as kept by the event log.
type StoredEvent struct {
	ID            string
	ParticipantID string
	Type          EventType
	OccurredAt    time.Time
	Payload       []byte // JSON encoded event_data
	ReceivedAt    time.Time
}

// EventRepository persists raw inbound events. The profile store reads the
// submissions recorded here.
type EventRepository interface {
	// Append stores the event. Returns shared.ErrDuplicate if an event with
	// the same ID was already stored.
	Append(ctx context.Context, event StoredEvent) error

	// DeleteOlderThan removes events that occurred before the cutoff.
	// Returns the number of events removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
