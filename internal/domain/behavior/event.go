// Package behavior contains the interpretation core of the service: observed
// learner events, the rolling participant profile, and the pure rules that turn
// them into frustration and confusion signals.
// This is a pure domain layer with zero external dependencies.
package behavior

import (
	"strings"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

// EventType identifies the kind of an observed learner action.
type EventType string

const (
	// EventTypeTestSubmission - the learner submitted an answer that was graded.
	EventTypeTestSubmission EventType = "test_submission"

	// EventTypeAIHelpRequest - the learner asked the AI assistant for help.
	EventTypeAIHelpRequest EventType = "ai_help_request"
)

// IsKnown reports whether the interpreter has a rule for this type.
func (t EventType) IsKnown() bool {
	return t == EventTypeTestSubmission || t == EventTypeAIHelpRequest
}

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// Payload is the type-specific part of an Event. The set of implementations is
// closed: TestSubmission, AIHelpRequest and UnknownEvent.
type Payload interface {
	EventType() EventType
	validate() error
}

// TestSubmission is the payload of a graded answer.
type TestSubmission struct {
	// TopicID is the knowledge component the answer belongs to. Empty if the
	// submission is not linked to a topic.
	TopicID string `json:"topic_id,omitempty"`

	// Passed is true when the answer was graded as correct.
	Passed bool `json:"passed"`
}

// EventType implements Payload.
func (TestSubmission) EventType() EventType { return EventTypeTestSubmission }

func (p TestSubmission) validate() error { return nil }

// HasTopic reports whether the submission carries a topic id.
func (p TestSubmission) HasTopic() bool { return strings.TrimSpace(p.TopicID) != "" }

// AIHelpRequest is the payload of a free-text request to the AI assistant.
type AIHelpRequest struct {
	Message string `json:"message"`
}

// EventType implements Payload.
func (AIHelpRequest) EventType() EventType { return EventTypeAIHelpRequest }

func (p AIHelpRequest) validate() error { return nil }

// UnknownEvent carries an event whose type has no interpretation rule yet.
// Keeping it as a payload lets new producers ship event types before the
// interpreter learns about them.
type UnknownEvent struct {
	Type EventType `json:"-"`
}

// EventType implements Payload.
func (p UnknownEvent) EventType() EventType { return p.Type }

func (p UnknownEvent) validate() error {
	if strings.TrimSpace(string(p.Type)) == "" {
		return shared.Malformed("Validate", "event_type", "must not be empty")
	}
	if p.Type.IsKnown() {
		return shared.Malformed("Validate", "event_data", "missing payload for "+string(p.Type))
	}
	return nil
}

// Event is one observed learner action. Events are immutable values.
type Event struct {
	ParticipantID string
	Timestamp     time.Time
	Payload       Payload
}

// NewEvent creates a validated event.
func NewEvent(participantID string, timestamp time.Time, payload Payload) (Event, error) {
	ev := Event{
		ParticipantID: participantID,
		Timestamp:     timestamp,
		Payload:       payload,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Type returns the event type of the payload, or "" when there is none.
func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// Validate checks the fields required for every event type.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ParticipantID) == "" {
		return shared.Malformed("Validate", "participant_id", "must not be empty")
	}
	if e.Timestamp.IsZero() {
		return shared.Malformed("Validate", "timestamp", "must be set")
	}
	if e.Payload == nil {
		return shared.Malformed("Validate", "event_data", "must be set")
	}
	return e.Payload.validate()
}
