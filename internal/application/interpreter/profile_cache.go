package interpreter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE
// Bounded read-through cache of participant profiles. One store fetch per
// participant at a time; different participants never wait on each other.
// ══════════════════════════════════════════════════════════════════════════════

// CacheConfig configures a ProfileCache.
type CacheConfig struct {
	// MaxEntries bounds the number of cached profiles (LRU eviction).
	MaxEntries int

	// TTL is how long a fetched profile is served before it is refetched.
	TTL time.Duration
}

// DefaultCacheConfig returns default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 10000,
		TTL:        30 * time.Second,
	}
}

type cacheEntry struct {
	profile   *behavior.UserProfile
	expiresAt time.Time
}

// flight tracks an in-progress fetch so Invalidate can keep its result out
// of the cache.
type flight struct {
	stale bool
}

// ProfileCache maps participant ids to profiles fetched from a ProfileStore.
// Safe for concurrent use.
type ProfileCache struct {
	store behavior.ProfileStore
	ttl   time.Duration
	now   func() time.Time
	rec   Recorder

	mu       sync.Mutex
	entries  *lru.Cache
	inflight map[string]*flight

	group singleflight.Group
}

// NewProfileCache creates a cache in front of store.
func NewProfileCache(store behavior.ProfileStore, cfg CacheConfig) *ProfileCache {
	def := DefaultCacheConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}

	return &ProfileCache{
		store:    store,
		ttl:      cfg.TTL,
		now:      time.Now,
		rec:      NopRecorder{},
		entries:  lru.New(cfg.MaxEntries),
		inflight: make(map[string]*flight),
	}
}

// SetRecorder sets the recorder notified about hits and misses.
func (c *ProfileCache) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = NopRecorder{}
	}
	c.rec = rec
}

// Get returns the profile of a participant, fetching it from the store on a
// miss or after the entry expired.
//
// A participant unknown to the store gets an empty profile, which is cached.
// Any other store failure is returned as shared.ErrStoreUnavailable and
// nothing is cached. Concurrent callers for one participant share a single
// fetch that is not tied to any one caller's context; a caller whose ctx ends
// first gets ctx.Err() while the fetch keeps serving the others.
func (c *ProfileCache) Get(ctx context.Context, participantID string) (*behavior.UserProfile, error) {
	if p, ok := c.lookup(participantID); ok {
		c.rec.CacheLookup(true)
		return p, nil
	}
	c.rec.CacheLookup(false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(participantID, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited for the
		// previous flight to finish.
		if p, ok := c.lookup(participantID); ok {
			return p, nil
		}
		return c.fetch(fetchCtx, participantID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*behavior.UserProfile), nil
	}
}

// Invalidate drops the cached profile of a participant. A fetch already in
// progress still answers its callers but its result is not cached.
func (c *ProfileCache) Invalidate(participantID string) {
	c.mu.Lock()
	c.entries.Remove(participantID)
	if f, ok := c.inflight[participantID]; ok {
		f.stale = true
	}
	c.mu.Unlock()

	c.group.Forget(participantID)
}

// Len returns the number of cached profiles, expired ones included.
func (c *ProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *ProfileCache) lookup(participantID string) (*behavior.UserProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(participantID)
	if !ok {
		return nil, false
	}
	e := v.(cacheEntry)
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(participantID)
		return nil, false
	}
	return e.profile, true
}

func (c *ProfileCache) fetch(ctx context.Context, participantID string) (*behavior.UserProfile, error) {
	f := &flight{}
	c.mu.Lock()
	c.inflight[participantID] = f
	c.mu.Unlock()

	profile, err := c.store.Fetch(ctx, participantID)
	switch {
	case err == nil && profile == nil:
		profile = behavior.EmptyProfile(participantID, c.now())
	case errors.Is(err, shared.ErrProfileNotFound):
		profile, err = behavior.EmptyProfile(participantID, c.now()), nil
	case err != nil && !errors.Is(err, shared.ErrStoreUnavailable):
		err = shared.WrapError("behavior", "FetchProfile", shared.ErrStoreUnavailable,
			"failed to read profile of "+participantID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[participantID] == f {
		delete(c.inflight, participantID)
	}
	if err != nil {
		return nil, err
	}
	if !f.stale {
		c.entries.Add(participantID, cacheEntry{profile: profile, expiresAt: c.now().Add(c.ttl)})
	}
	return profile, nil
}
