package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RETENTION JOB
// ══════════════════════════════════════════════════════════════════════════════

// Pruner deletes rows older than a cutoff. Implemented by the event and
// episode repositories.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob deletes raw behavior events and user state episodes that are
// older than the retention period.
type RetentionJob struct {
	events    Pruner
	episodes  Pruner
	retention time.Duration
	timeout   time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewRetentionJob creates the job. Either pruner may be nil.
func NewRetentionJob(events, episodes Pruner, retention, timeout time.Duration, log *logger.Logger) *RetentionJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RetentionJob{
		events:    events,
		episodes:  episodes,
		retention: retention,
		timeout:   timeout,
		log:       log.With(logger.Component("retention")),
		now:       time.Now,
	}
}

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention" }

// Description implements Job.
func (j *RetentionJob) Description() string {
	return fmt.Sprintf("delete events and episodes older than %s", j.retention)
}

// Run implements Job. Both tables are pruned even if one fails.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	cutoff := j.now().UTC().Add(-j.retention)
	var errs []error

	if j.events != nil {
		n, err := j.events.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune events: %w", err))
		} else {
			j.log.Info("events pruned", logger.Int64("deleted", n), logger.Time("cutoff", cutoff))
		}
	}

	if j.episodes != nil {
		n, err := j.episodes.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune episodes: %w", err))
		} else {
			j.log.Info("episodes pruned", logger.Int64("deleted", n), logger.Time("cutoff", cutoff))
		}
	}

	return errors.Join(errs...)
}
