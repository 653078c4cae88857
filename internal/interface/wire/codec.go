// Package wire decodes the JSON event envelope shared by the HTTP endpoint and
// the Kafka topic.
//
// Envelope:
//
//	{
//	  "event_id":       "3f1c1b9e-...",          // optional UUID
//	  "participant_id": "u1",
//	  "event_type":     "test_submission",
//	  "timestamp":      "2024-03-01T10:00:00Z", // or Unix seconds
//	  "event_data":     {"passed": false, "topic_id": "loops"}
//	}
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

// Envelope is the JSON shape of one inbound event.
type Envelope struct {
	EventID       string          `json:"event_id,omitempty"`
	ParticipantID string          `json:"participant_id"`
	EventType     string          `json:"event_type"`
	Timestamp     json.RawMessage `json:"timestamp"`
	EventData     json.RawMessage `json:"event_data"`
}

// Decoded is a decoded and validated envelope.
type Decoded struct {
	EventID string
	Event   behavior.Event

	// EventData is the event_data object exactly as received.
	EventData json.RawMessage
}

type submissionData struct {
	TopicID string `json:"topic_id"`
	Passed  *bool  `json:"passed"`
}

type helpRequestData struct {
	Message *string `json:"message"`
}

// Decode parses raw into a validated event. Every failure is a
// shared.ErrMalformedEvent.
func Decode(raw []byte) (Decoded, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Decoded{}, shared.WrapError("behavior", "Decode", shared.ErrMalformedEvent, "invalid JSON", err)
	}
	return env.Decode()
}

// Decode converts the envelope into a validated event.
func (env Envelope) Decode() (Decoded, error) {
	ts, err := ParseTimestamp(env.Timestamp)
	if err != nil {
		return Decoded{}, shared.WrapError("behavior", "Decode", shared.ErrMalformedEvent, "timestamp", err)
	}

	eventType := behavior.EventType(strings.TrimSpace(env.EventType))
	payload, err := decodePayload(eventType, env.EventData)
	if err != nil {
		return Decoded{}, err
	}

	ev, err := behavior.NewEvent(strings.TrimSpace(env.ParticipantID), ts, payload)
	if err != nil {
		return Decoded{}, err
	}

	return Decoded{
		EventID:   strings.TrimSpace(env.EventID),
		Event:     ev,
		EventData: env.EventData,
	}, nil
}

func decodePayload(t behavior.EventType, data json.RawMessage) (behavior.Payload, error) {
	if !t.IsKnown() {
		return behavior.UnknownEvent{Type: t}, nil
	}
	if isAbsent(data) {
		return nil, shared.Malformed("Decode", "event_data", "must be an object")
	}

	switch t {
	case behavior.EventTypeTestSubmission:
		var d submissionData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, shared.WrapError("behavior", "Decode", shared.ErrMalformedEvent, "event_data", err)
		}
		if d.Passed == nil {
			return nil, shared.Malformed("Decode", "event_data.passed", "is required")
		}
		return behavior.TestSubmission{TopicID: strings.TrimSpace(d.TopicID), Passed: *d.Passed}, nil

	default:
		var d helpRequestData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, shared.WrapError("behavior", "Decode", shared.ErrMalformedEvent, "event_data", err)
		}
		if d.Message == nil {
			return nil, shared.Malformed("Decode", "event_data.message", "is required")
		}
		return behavior.AIHelpRequest{Message: *d.Message}, nil
	}
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseTimestamp accepts an RFC 3339 string or Unix seconds, given either as a
// JSON number or a numeric string. Fractional seconds are kept.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	if isAbsent(raw) {
		return time.Time{}, fmt.Errorf("missing")
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if trimmed == "" {
			return time.Time{}, fmt.Errorf("empty string")
		}
		if ts, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return ts.UTC(), nil
		}
		if secs, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return fromUnixSeconds(secs)
		}
		return time.Time{}, fmt.Errorf("unsupported format %q", trimmed)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		secs, err := asNumber.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return fromUnixSeconds(secs)
	}

	return time.Time{}, fmt.Errorf("format not recognized")
}

func fromUnixSeconds(secs float64) (time.Time, error) {
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("unix seconds out of range")
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
}

// Encode builds the envelope for ev. Used by producers and tests.
func Encode(eventID string, ev behavior.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(ev.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       eventID,
		ParticipantID: ev.ParticipantID,
		EventType:     ev.Type().String(),
		Timestamp:     ts,
		EventData:     data,
	})
}
