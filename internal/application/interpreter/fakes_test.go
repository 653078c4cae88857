package interpreter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
)

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*behavior.UserProfile
	err      error
	calls    map[string]int
	total    atomic.Int32

	// release, when set, blocks Fetch until it is closed.
	release chan struct{}
	started chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*behavior.UserProfile),
		calls:    make(map[string]int),
	}
}

func (s *fakeStore) put(p *behavior.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ParticipantID] = p
}

func (s *fakeStore) callsFor(pid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pid]
}

func (s *fakeStore) Fetch(ctx context.Context, pid string) (*behavior.UserProfile, error) {
	s.total.Add(1)
	s.mu.Lock()
	s.calls[pid]++
	release, started := s.release, s.started
	s.mu.Unlock()

	if started != nil {
		started <- pid
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[pid]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	frustration []string
	confusion   []string
	err         error
}

func (n *fakeNotifier) NotifyFrustration(_ context.Context, pid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frustration = append(n.frustration, pid)
	return n.err
}

func (n *fakeNotifier) NotifyConfusion(_ context.Context, pid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confusion = append(n.confusion, pid)
	return n.err
}

type updateCall struct {
	ParticipantID string
	TopicID       string
	Passed        bool
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []updateCall
	err   error
}

func (u *fakeUpdater) Update(_ context.Context, pid, topic string, passed bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, updateCall{pid, topic, passed})
	return u.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []string
	signals []string
	hits    int
	misses  int
}

func (r *fakeRecorder) EventInterpreted(_ string, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *fakeRecorder) SignalFired(signal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
}

func (r *fakeRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}
