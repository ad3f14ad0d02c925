package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/forgeworks/draftforge/pkg/models"
)

// ErrBuildAborted is returned to followers when the leader aborts without
// publishing. Followers decide independently whether to fail or re-run.
var ErrBuildAborted = errors.New("cache build aborted")

// LookupState classifies a Lookup result.
type LookupState int

// Lookup outcomes.
const (
	Miss LookupState = iota
	Hit
	InFlight
)

// entry is one stored bundle with its expiry.
type entry struct {
	bundle    models.Bundle
	expiresAt time.Time
}

// flight coordinates one in-progress build. The leader closes done exactly
// once via Publish or Abort; followers wait on it.
type flight struct {
	done   chan struct{}
	bundle models.Bundle
	err    error
}

// LeaderToken authorizes Publish/Abort for one fingerprint. Held by the single
// caller that won Begin.
type LeaderToken struct {
	fingerprint string
	f           *flight
}

// Fingerprint returns the fingerprint this token is leading.
func (t *LeaderToken) Fingerprint() string { return t.fingerprint }

// Follower waits on another caller's in-progress build.
type Follower struct {
	f *flight
}

// Wait blocks until the leader publishes or aborts, or ctx is done.
func (w *Follower) Wait(ctx context.Context) (models.Bundle, error) {
	select {
	case <-w.f.done:
		return w.f.bundle, w.f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cache is the content bundle cache. Strictly a performance layer: it never
// owns artifacts (those belong to jobs) and a disabled cache only costs
// recomputation, never correctness.
//
// Locking: one coarse mutex guards the LRU map and the inflight registry.
// Critical sections are O(1); bundle construction happens outside the lock.
type Cache struct {
	mu       sync.Mutex
	entries  *simplelru.LRU[string, *entry]
	inflight map[string]*flight
	disabled bool

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache bounded to maxEntries (soft LRU cap).
func New(maxEntries int) (*Cache, error) {
	l, err := simplelru.NewLRU[string, *entry](maxEntries, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{
		entries:  l,
		inflight: make(map[string]*flight),
	}, nil
}

// NewDisabled creates a cache that always misses and never stores. Every
// Begin caller becomes a leader whose Publish is a no-op.
func NewDisabled() *Cache {
	return &Cache{disabled: true}
}

// Disabled reports whether the cache is a no-op.
func (c *Cache) Disabled() bool { return c.disabled }

// Lookup returns the bundle for a fingerprint if present and unexpired, or
// reports an in-progress build.
func (c *Cache) Lookup(fingerprint string) (models.Bundle, LookupState) {
	if c.disabled {
		return nil, Miss
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries.Get(fingerprint); ok {
		if time.Now().Before(e.expiresAt) {
			c.hits.Add(1)
			return e.bundle.Clone(), Hit
		}
		// Expired — clean up lazily.
		c.entries.Remove(fingerprint)
	}
	if _, ok := c.inflight[fingerprint]; ok {
		return nil, InFlight
	}
	c.misses.Add(1)
	return nil, Miss
}

// Begin atomically claims the build for a fingerprint. Exactly one concurrent
// caller receives a LeaderToken; the rest receive a Follower that observes the
// leader's outcome. Callers must check both returns: exactly one is non-nil.
func (c *Cache) Begin(fingerprint string) (*LeaderToken, *Follower) {
	if c.disabled {
		return &LeaderToken{fingerprint: fingerprint}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.inflight[fingerprint]; ok {
		return nil, &Follower{f: f}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight[fingerprint] = f
	return &LeaderToken{fingerprint: fingerprint, f: f}, nil
}

// Publish stores the leader's bundle and releases all followers. Leader-only;
// never partially stores.
func (c *Cache) Publish(token *LeaderToken, bundle models.Bundle, ttl time.Duration) {
	if c.disabled || token == nil || token.f == nil {
		return
	}

	c.mu.Lock()
	c.entries.Add(token.fingerprint, &entry{
		bundle:    bundle.Clone(),
		expiresAt: time.Now().Add(ttl),
	})
	delete(c.inflight, token.fingerprint)
	c.mu.Unlock()

	token.f.bundle = bundle
	close(token.f.done)

	slog.Debug("Cache bundle published", "fingerprint", token.fingerprint, "ttl", ttl)
}

// Abort releases followers with the leader's error without storing anything.
func (c *Cache) Abort(token *LeaderToken, err error) {
	if c.disabled || token == nil || token.f == nil {
		return
	}

	c.mu.Lock()
	delete(c.inflight, token.fingerprint)
	c.mu.Unlock()

	if err == nil {
		err = ErrBuildAborted
	}
	token.f.err = err
	close(token.f.done)
}

// Invalidate removes the given fingerprints. Missing keys are ignored.
// In-flight builds are unaffected: their eventual Publish re-stores.
func (c *Cache) Invalidate(fingerprints ...string) int {
	if c.disabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, fp := range fingerprints {
		if c.entries.Remove(fp) {
			removed++
		}
	}
	return removed
}

// InvalidateAll purges every stored entry.
func (c *Cache) InvalidateAll() int {
	if c.disabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entries.Len()
	c.entries.Purge()
	return n
}

// Stats is a point-in-time snapshot for /health.
type Stats struct {
	Entries  int   `json:"entries"`
	InFlight int   `json:"in_flight"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Disabled bool  `json:"disabled"`
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	if c.disabled {
		return Stats{Disabled: true}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  c.entries.Len(),
		InFlight: len(c.inflight),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
