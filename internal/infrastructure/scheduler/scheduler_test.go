package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_Register(t *testing.T) {
	s := New(Config{}, nil)

	require.NoError(t, s.Register(&countingJob{name: "a"}, "@every 1h"))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, "@every 1h"), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, "@every 1h"), ErrNilJob)
	assert.Error(t, s.Register(&countingJob{name: "b"}, "not a schedule"))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@every 1h", jobs[0].Schedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(Config{}, nil)
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, "@daily"))
	require.NoError(t, s.Register(bad, "@daily"))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "boom")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)
	assert.False(t, history[1].Success)

	for _, info := range s.ListJobs() {
		assert.Equal(t, int64(1), info.RunCount)
		if info.Name == "bad" {
			assert.Equal(t, int64(1), info.FailCount)
		}
	}
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(Config{}, nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, "@every 1s"))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
}

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func TestRetentionJob(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	events := &fakePruner{n: 12}
	episodes := &fakePruner{err: errors.New("locked")}
	job := NewRetentionJob(events, episodes, 7*24*time.Hour, time.Minute, nil)
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune episodes")
	assert.Equal(t, now.Add(-7*24*time.Hour), events.cutoff, "events are pruned even when episodes fail")
	assert.Equal(t, now.Add(-7*24*time.Hour), episodes.cutoff)
}

func TestRetentionJob_DisabledWithZeroRetention(t *testing.T) {
	events := &fakePruner{}
	job := NewRetentionJob(events, nil, 0, 0, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, events.cutoff.IsZero())
}
