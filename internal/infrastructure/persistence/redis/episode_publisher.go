package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/userstate"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
)

// counterTTL keeps daily counters a little past the end of their day.
const counterTTL = 48 * time.Hour

// episodeSink is the part of Cache used by EpisodePublisher.
type episodeSink interface {
	Publish(ctx context.Context, channel string, message any) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// EpisodeMessage is the pub/sub payload for one episode.
type EpisodeMessage struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Kind          string    `json:"kind"`
	OccurredAt    time.Time `json:"occurred_at"`
	CountToday    int64     `json:"count_today"`
}

// EpisodePublisher implements userstate.Publisher over Redis pub/sub.
type EpisodePublisher struct {
	sink    episodeSink
	breaker *circuitbreaker.CircuitBreaker
}

// NewEpisodePublisher creates a publisher. breaker may be nil.
func NewEpisodePublisher(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *EpisodePublisher {
	return newEpisodePublisher(cache, breaker)
}

func newEpisodePublisher(sink episodeSink, breaker *circuitbreaker.CircuitBreaker) *EpisodePublisher {
	return &EpisodePublisher{sink: sink, breaker: breaker}
}

// Publish bumps the participant's daily counter and broadcasts the episode on
// its kind's channel.
func (p *EpisodePublisher) Publish(ctx context.Context, ep *userstate.Episode) error {
	if p.breaker == nil {
		return p.publish(ctx, ep)
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publish(ctx, ep)
	})
}

func (p *EpisodePublisher) publish(ctx context.Context, ep *userstate.Episode) error {
	kind := ep.Kind.String()

	count, err := p.sink.IncrWithTTL(ctx, EpisodeCounterKey(ep.ParticipantID, kind, ep.OccurredAt), counterTTL)
	if err != nil {
		return fmt.Errorf("redis: failed to count episode: %w", err)
	}

	msg := EpisodeMessage{
		ID:            ep.ID,
		ParticipantID: ep.ParticipantID,
		Kind:          kind,
		OccurredAt:    ep.OccurredAt,
		CountToday:    count,
	}
	if err := p.sink.Publish(ctx, EpisodeChannel(kind), msg); err != nil {
		return fmt.Errorf("redis: failed to publish episode: %w", err)
	}
	return nil
}
