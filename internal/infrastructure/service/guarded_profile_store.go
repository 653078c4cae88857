// Package service holds adapters that sit between application ports and
// concrete infrastructure.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// GuardedProfileStore bounds each profile read with a timeout and stops
// calling a failing store for a while.
type GuardedProfileStore struct {
	store   behavior.ProfileStore
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedProfileStore wraps store. A zero timeout disables the deadline.
// onStateChange, if set, is called after breaker transitions are logged.
func NewGuardedProfileStore(
	store behavior.ProfileStore,
	timeout time.Duration,
	log *logger.Logger,
	onStateChange func(name string, from, to circuitbreaker.State),
) *GuardedProfileStore {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("profile-store"))

	breaker := circuitbreaker.ProfileStoreBreaker(isStoreFailure, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if onStateChange != nil {
			onStateChange(name, from, to)
		}
	})

	return &GuardedProfileStore{store: store, breaker: breaker, timeout: timeout}
}

// Fetch implements behavior.ProfileStore.
func (g *GuardedProfileStore) Fetch(ctx context.Context, participantID string) (*behavior.UserProfile, error) {
	var profile *behavior.UserProfile

	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		p, err := g.store.Fetch(ctx, participantID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})

	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, shared.ErrProfileNotFound):
		return nil, err
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return nil, shared.WrapError("behavior", "FetchProfile", shared.ErrStoreUnavailable, "profile store circuit open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, shared.WrapError("behavior", "FetchProfile", shared.ErrStoreUnavailable, "profile store timed out", err)
	default:
		return nil, err
	}
}

// BreakerState reports the breaker state for the readiness check.
func (g *GuardedProfileStore) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}

// isStoreFailure counts everything except "participant not found" and
// caller cancellation against the store.
func isStoreFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, shared.ErrProfileNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
