package messaging

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/behavior-interpreter/internal/application/command"
	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingHandler struct {
	cmds []command.IngestEventCommand
	err  error

	// errs, when set, are returned one per call before err.
	errs []error
}

func (h *recordingHandler) Handle(_ context.Context, cmd command.IngestEventCommand) (*command.IngestEventResult, error) {
	h.cmds = append(h.cmds, cmd)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return &command.IngestEventResult{}, err
	}
	return &command.IngestEventResult{}, h.err
}

const validMessage = `{"event_id":"3f1c1b9e-6f43-4c39-9a5e-2f0d2b7a9a11","participant_id":"u1","event_type":"test_submission","timestamp":"2024-03-01T10:00:00Z","event_data":{"passed":false}}`

func testConfig() ConsumerConfig {
	return ConsumerConfig{Brokers: []string{"localhost:9092"}, Topic: "behavior-events", GroupID: "interpreter", PollTimeout: time.Second}
}

func TestEventConsumer_HandlesAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(validMessage)},
		{Offset: 2, Value: []byte(`{not json`)},
	}}
	handler := &recordingHandler{}
	c := newEventConsumer(testConfig(), reader, handler, nil)

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, handler.cmds, 1)
	cmd := handler.cmds[0]
	assert.Equal(t, "3f1c1b9e-6f43-4c39-9a5e-2f0d2b7a9a11", cmd.EventID)
	assert.Equal(t, "kafka", cmd.Source)
	assert.Equal(t, behavior.TestSubmission{Passed: false}, cmd.Event.Payload)
	assert.JSONEq(t, `{"passed":false}`, string(cmd.RawPayload))

	assert.Equal(t, []int64{1, 2}, reader.committed, "malformed messages are committed too")
}

func TestEventConsumer_HandlerFailureStillCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte(validMessage)}}}
	handler := &recordingHandler{err: shared.NewDomainError("behavior", "Interpret", shared.ErrNotifier, "down")}
	c := newEventConsumer(testConfig(), reader, handler, nil)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestEventConsumer_StoreOutageHoldsMessageUntilHandled(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 3, Value: []byte(validMessage)},
		{Offset: 4, Value: []byte(validMessage)},
	}}
	down := shared.NewDomainError("behavior", "FetchProfile", shared.ErrStoreUnavailable, "down")
	handler := &recordingHandler{errs: []error{down, down}}
	cfg := testConfig()
	cfg.RedeliveryDelay = time.Millisecond
	c := newEventConsumer(cfg, reader, handler, nil)

	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, handler.cmds, 4, "offset 3 handled three times, offset 4 once")
	assert.Equal(t, []int64{3, 4}, reader.committed)
}

func TestEventConsumer_StoreOutageNotCommittedOnShutdown(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 9, Value: []byte(validMessage)}}}
	handler := &recordingHandler{err: shared.NewDomainError("behavior", "FetchProfile", shared.ErrStoreUnavailable, "down")}
	cfg := testConfig()
	cfg.RedeliveryDelay = time.Hour
	c := newEventConsumer(cfg, reader, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, reader.committed)
}

func TestEventConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newEventConsumer(testConfig(), &fakeReader{}, &recordingHandler{}, nil)

	err := c.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConsumerConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	assert.Error(t, ConsumerConfig{Topic: "t", GroupID: "g"}.Validate())
	assert.Error(t, ConsumerConfig{Brokers: []string{"b"}, GroupID: "g"}.Validate())
	assert.Error(t, ConsumerConfig{Brokers: []string{"b"}, Topic: "t"}.Validate())
}
