// Package retry re-runs an operation with capped exponential backoff while a
// caller-supplied predicate reports the failure as transient.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Retrier holds one retry policy. Safe for concurrent use.
type Retrier struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	jitter   float64

	retryIf func(error) bool
	onRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Retrier.
type Option func(*Retrier)

// WithMaxAttempts sets the total number of attempts, the first one included.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.initial = d
		}
	}
}

// WithMaxDelay caps the wait between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.max = d
		}
	}
}

// WithRetryIf sets the predicate deciding whether a failure is retried.
// Without one nothing is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryIf = fn }
}

// WithOnRetry sets a callback run before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New creates a Retrier. Defaults: 3 attempts, 100ms doubling up to 30s,
// no jitter.
func New(opts ...Option) *Retrier {
	r := &Retrier{attempts: 3, initial: 100 * time.Millisecond, max: 30 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IngestRetrier is the policy of the ingest pipeline: 4 attempts, 200ms
// doubling up to 5s with 20% jitter. Only failures accepted by retryIf are
// retried; the predicate must reject failures after which signals may
// already have fired.
func IngestRetrier(retryIf func(error) bool, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	r := New(
		WithMaxAttempts(4),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithRetryIf(retryIf),
		WithOnRetry(onRetry),
	)
	r.jitter = 0.2
	return r
}

// Do runs op until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx ends. The last error from op is returned; ctx.Err() is
// returned only if op never ran.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if attempt >= r.attempts || r.retryIf == nil || !r.retryIf(last) {
			return last
		}

		delay := r.delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, last, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// delay returns the wait after the given failed attempt.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.initial
	for i := 1; i < attempt && d < r.max; i++ {
		d *= 2
	}
	if d > r.max {
		d = r.max
	}
	if r.jitter > 0 {
		d += time.Duration(float64(d) * r.jitter * (rand.Float64()*2 - 1))
	}
	return d
}
