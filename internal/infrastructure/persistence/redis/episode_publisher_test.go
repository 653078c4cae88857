package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/behavior-interpreter/internal/domain/userstate"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
)

type fakeSink struct {
	counters  map[string]int64
	published map[string][]any
	err       error
}

func newFakeSink() *fakeSink {
	return &fakeSink{counters: map[string]int64{}, published: map[string][]any{}}
}

func (s *fakeSink) Publish(_ context.Context, channel string, msg any) error {
	if s.err != nil {
		return s.err
	}
	s.published[channel] = append(s.published[channel], msg)
	return nil
}

func (s *fakeSink) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key]++
	return s.counters[key], nil
}

func episode(kind userstate.Kind) *userstate.Episode {
	return &userstate.Episode{
		ID:            "ep-1",
		ParticipantID: "u1",
		Kind:          kind,
		OccurredAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEpisodePublisher_Publish(t *testing.T) {
	sink := newFakeSink()
	pub := newEpisodePublisher(sink, nil)

	require.NoError(t, pub.Publish(context.Background(), episode(userstate.KindFrustration)))
	require.NoError(t, pub.Publish(context.Background(), episode(userstate.KindFrustration)))

	msgs := sink.published["pubsub:userstate:frustration"]
	require.Len(t, msgs, 2)
	last := msgs[1].(EpisodeMessage)
	assert.Equal(t, "u1", last.ParticipantID)
	assert.Equal(t, int64(2), last.CountToday)
	assert.Equal(t, int64(2), sink.counters["episodes:frustration:u1:2024-03-01"])
}

func TestEpisodePublisher_BreakerOpensOnFailures(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("connection refused")
	pub := newEpisodePublisher(sink, circuitbreaker.PublisherBreaker(nil))

	for i := 0; i < 3; i++ {
		assert.Error(t, pub.Publish(context.Background(), episode(userstate.KindConfusion)))
	}

	err := pub.Publish(context.Background(), episode(userstate.KindConfusion))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestEpisodeKeys(t *testing.T) {
	day := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	assert.Equal(t, "episodes:confusion:u1:2024-03-01", EpisodeCounterKey("u1", "confusion", day))
	assert.Equal(t, "pubsub:userstate:confusion", EpisodeChannel("confusion"))
}
