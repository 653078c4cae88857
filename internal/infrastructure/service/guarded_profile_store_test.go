package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
)

type stubStore struct {
	calls int
	err   error
	delay time.Duration
}

func (s *stubStore) Fetch(ctx context.Context, pid string) (*behavior.UserProfile, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return behavior.EmptyProfile(pid, time.Now()), nil
}

func TestGuardedProfileStore_PassesThrough(t *testing.T) {
	store := &stubStore{}
	g := NewGuardedProfileStore(store, time.Second, nil, nil)

	p, err := g.Fetch(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "u1", p.ParticipantID)
	assert.Equal(t, 1, store.calls)
}

func TestGuardedProfileStore_NotFoundDoesNotTrip(t *testing.T) {
	store := &stubStore{err: shared.ErrProfileNotFound}
	g := NewGuardedProfileStore(store, 0, nil, nil)

	for i := 0; i < 10; i++ {
		_, err := g.Fetch(context.Background(), "ghost")
		assert.ErrorIs(t, err, shared.ErrProfileNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.BreakerState())
	assert.Equal(t, 10, store.calls)
}

func TestGuardedProfileStore_OpensAfterFailures(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	g := NewGuardedProfileStore(store, 0, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Fetch(context.Background(), "u1")
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, g.BreakerState())

	_, err := g.Fetch(context.Background(), "u1")
	assert.True(t, shared.IsStoreUnavailable(err))
	assert.Equal(t, 5, store.calls, "open breaker must not call the store")
}

func TestGuardedProfileStore_TimeoutIsStoreUnavailable(t *testing.T) {
	store := &stubStore{delay: time.Second}
	g := NewGuardedProfileStore(store, 10*time.Millisecond, nil, nil)

	_, err := g.Fetch(context.Background(), "u1")

	assert.True(t, shared.IsStoreUnavailable(err))
}
