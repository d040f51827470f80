package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"frameworks/api_compose/pkg/models"
)

// CacheHooks are optional callbacks for cache observability.
type CacheHooks struct {
	OnHit    func()
	OnMiss   func()
	OnBypass func()
	OnStore  func()
	OnError  func()
}

func callHook(h func()) {
	if h != nil {
		h()
	}
}

type snapshotEntry struct {
	snap      *models.DiscoverySnapshot
	expiresAt time.Time
}

// SnapshotLoader produces a fresh discovery snapshot.
type SnapshotLoader func(ctx context.Context) (*models.DiscoverySnapshot, error)

// SnapshotCache is a TTL cache holding the single discovery snapshot.
// Concurrent misses coalesce into one scan: every caller waiting on an
// in-flight scan receives the same result or the same error. Errors are
// never cached, so the next call after a failure scans again.
type SnapshotCache struct {
	mu    sync.RWMutex
	entry *snapshotEntry
	ttl   time.Duration
	hooks CacheHooks
	sf    singleflight.Group
}

// NewSnapshotCache creates a cache with the given TTL.
func NewSnapshotCache(ttl time.Duration, hooks CacheHooks) *SnapshotCache {
	return &SnapshotCache{ttl: ttl, hooks: hooks}
}

// Get returns the cached snapshot while it is fresh, otherwise runs the
// loader. With bypass, the cache read is skipped and a scan always runs,
// refreshing the entry for subsequent callers.
func (c *SnapshotCache) Get(ctx context.Context, bypass bool, load SnapshotLoader) (*models.DiscoverySnapshot, error) {
	if !bypass {
		if snap, ok := c.fresh(); ok {
			callHook(c.hooks.OnHit)
			return snap, nil
		}
		callHook(c.hooks.OnMiss)
	} else {
		callHook(c.hooks.OnBypass)
	}

	v, err, _ := c.sf.Do("snapshot", func() (interface{}, error) {
		// Double check: a caller that lost the race to an already
		// finished flight takes the stored result instead of scanning
		// again.
		if !bypass {
			if snap, ok := c.fresh(); ok {
				return snap, nil
			}
		}

		snap, err := load(ctx)
		if err != nil {
			callHook(c.hooks.OnError)
			return nil, err
		}

		c.mu.Lock()
		c.entry = &snapshotEntry{snap: snap, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		callHook(c.hooks.OnStore)

		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.DiscoverySnapshot), nil
}

// fresh returns the cached snapshot if present and unexpired. The returned
// value is a shallow copy flagged as served from cache.
func (c *SnapshotCache) fresh() (*models.DiscoverySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil || !time.Now().Before(c.entry.expiresAt) {
		return nil, false
	}
	snap := *c.entry.snap
	snap.Cached = true
	return &snap, true
}

// Invalidate drops the cached snapshot immediately, regardless of TTL.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}
