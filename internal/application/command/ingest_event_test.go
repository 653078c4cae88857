package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/behavior-interpreter/internal/application/interpreter"
	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/retry"
)

var ts = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type memoryEvents struct {
	mu     sync.Mutex
	stored []behavior.StoredEvent
	ids    map[string]bool
	err    error
}

func newMemoryEvents() *memoryEvents {
	return &memoryEvents{ids: make(map[string]bool)}
}

func (m *memoryEvents) Append(_ context.Context, ev behavior.StoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.ids[ev.ID] {
		return shared.NewDomainError("behavior", "Append", shared.ErrDuplicate, "event exists")
	}
	m.ids[ev.ID] = true
	m.stored = append(m.stored, ev)
	return nil
}

func (m *memoryEvents) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type scriptedInterpreter struct {
	calls []behavior.Event
	errs  []error
	out   interpreter.Outcome
}

func (s *scriptedInterpreter) Interpret(_ context.Context, ev behavior.Event) (interpreter.Outcome, error) {
	s.calls = append(s.calls, ev)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	return s.out, err
}

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) Invalidate(pid string) { r.ids = append(r.ids, pid) }

func submissionEvent(passed bool) behavior.Event {
	return behavior.Event{
		ParticipantID: "u1",
		Timestamp:     ts,
		Payload:       behavior.TestSubmission{TopicID: "loops", Passed: passed},
	}
}

func newTestHandler(events behavior.EventRepository, interp EventInterpreter, inv ProfileInvalidator) *IngestEventHandler {
	h := NewIngestEventHandler(events, interp, inv, nil, IngestEventHandlerConfig{})
	h.now = func() time.Time { return ts.Add(time.Second) }
	return h
}

func TestIngestEvent_PersistsInvalidatesAndInterprets(t *testing.T) {
	events := newMemoryEvents()
	interp := &scriptedInterpreter{out: interpreter.Outcome{EventType: behavior.EventTypeTestSubmission, Frustrated: true}}
	inv := &recordingInvalidator{}
	h := newTestHandler(events, interp, inv)

	res, err := h.Handle(context.Background(), IngestEventCommand{
		Event:      submissionEvent(false),
		RawPayload: json.RawMessage(`{"passed":false,"topic_id":"loops"}`),
		Source:     "http",
	})

	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Outcome.Frustrated)
	assert.NotEmpty(t, res.EventID)

	require.Len(t, events.stored, 1)
	stored := events.stored[0]
	assert.Equal(t, res.EventID, stored.ID)
	assert.Equal(t, behavior.EventTypeTestSubmission, stored.Type)
	assert.Equal(t, ts, stored.OccurredAt)
	assert.JSONEq(t, `{"passed":false,"topic_id":"loops"}`, string(stored.Payload))

	assert.Equal(t, []string{"u1"}, inv.ids)
	assert.Len(t, interp.calls, 1)
}

func TestIngestEvent_EncodesPayloadWhenRawMissing(t *testing.T) {
	events := newMemoryEvents()
	h := newTestHandler(events, &scriptedInterpreter{}, nil)

	_, err := h.Handle(context.Background(), IngestEventCommand{
		Event: behavior.Event{ParticipantID: "u1", Timestamp: ts, Payload: behavior.AIHelpRequest{Message: "why"}},
	})

	require.NoError(t, err)
	require.Len(t, events.stored, 1)
	assert.JSONEq(t, `{"message":"why"}`, string(events.stored[0].Payload))
}

func TestIngestEvent_HelpRequestDoesNotInvalidate(t *testing.T) {
	inv := &recordingInvalidator{}
	h := newTestHandler(newMemoryEvents(), &scriptedInterpreter{}, inv)

	_, err := h.Handle(context.Background(), IngestEventCommand{
		Event: behavior.Event{ParticipantID: "u1", Timestamp: ts, Payload: behavior.AIHelpRequest{Message: "ok"}},
	})

	require.NoError(t, err)
	assert.Empty(t, inv.ids)
}

func TestIngestEvent_DuplicateIsNotReinterpreted(t *testing.T) {
	events := newMemoryEvents()
	interp := &scriptedInterpreter{}
	h := newTestHandler(events, interp, &recordingInvalidator{})
	cmd := IngestEventCommand{EventID: "3f1c1b9e-6f43-4c39-9a5e-2f0d2b7a9a11", Event: submissionEvent(false)}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Len(t, interp.calls, 1)
	assert.Len(t, events.stored, 1)
}

func TestIngestEvent_PersistFailureStillInterprets(t *testing.T) {
	events := newMemoryEvents()
	events.err = errors.New("connection reset")
	interp := &scriptedInterpreter{}
	inv := &recordingInvalidator{}
	h := newTestHandler(events, interp, inv)

	res, err := h.Handle(context.Background(), IngestEventCommand{Event: submissionEvent(false)})

	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Empty(t, inv.ids, "nothing new was recorded, the cached profile is still valid")
	assert.Len(t, interp.calls, 1)
}

func TestIngestEvent_RejectsMalformed(t *testing.T) {
	interp := &scriptedInterpreter{}
	events := newMemoryEvents()
	h := newTestHandler(events, interp, nil)

	_, err := h.Handle(context.Background(), IngestEventCommand{EventID: "not-a-uuid", Event: submissionEvent(false)})
	assert.True(t, shared.IsMalformed(err))

	_, err = h.Handle(context.Background(), IngestEventCommand{Event: behavior.Event{Timestamp: ts, Payload: behavior.TestSubmission{}}})
	assert.True(t, shared.IsMalformed(err))

	assert.Empty(t, interp.calls)
	assert.Empty(t, events.stored)
}

func TestIngestEvent_RetriesStoreOutagesOnly(t *testing.T) {
	unavailable := shared.NewDomainError("behavior", "FetchProfile", shared.ErrStoreUnavailable, "down")
	fast := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(time.Millisecond),
		retry.WithRetryIf(shared.IsStoreUnavailable),
	)

	t.Run("store outage then success", func(t *testing.T) {
		interp := &scriptedInterpreter{errs: []error{unavailable, unavailable}}
		h := NewIngestEventHandler(nil, interp, nil, nil, IngestEventHandlerConfig{RetryStoreOutages: true})
		h.retrier = fast

		_, err := h.Handle(context.Background(), IngestEventCommand{Event: submissionEvent(false)})

		require.NoError(t, err)
		assert.Len(t, interp.calls, 3)
	})

	t.Run("notifier failure is not retried", func(t *testing.T) {
		notifierErr := shared.NewDomainError("behavior", "NotifyFrustration", shared.ErrNotifier, "down")
		interp := &scriptedInterpreter{errs: []error{notifierErr}}
		h := NewIngestEventHandler(nil, interp, nil, nil, IngestEventHandlerConfig{RetryStoreOutages: true})
		h.retrier = fast

		res, err := h.Handle(context.Background(), IngestEventCommand{Event: submissionEvent(false)})

		assert.ErrorIs(t, err, shared.ErrNotifier)
		assert.NotNil(t, res)
		assert.Len(t, interp.calls, 1)
	})

	t.Run("no retry when disabled", func(t *testing.T) {
		interp := &scriptedInterpreter{errs: []error{unavailable}}
		h := NewIngestEventHandler(nil, interp, nil, nil, IngestEventHandlerConfig{})

		_, err := h.Handle(context.Background(), IngestEventCommand{Event: submissionEvent(false)})

		assert.True(t, shared.IsStoreUnavailable(err))
		assert.Len(t, interp.calls, 1)
	})
}
