package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options[V any] struct {
	TTL         time.Duration
	NegativeTTL time.Duration
	MaxEntries  int
	// Clone is applied to every value handed out so callers never share
	// cached state. Nil means values are returned as stored.
	Clone func(V) V
}

type MetricsHooks struct {
	OnHit    func(labels map[string]string)
	OnMiss   func(labels map[string]string)
	OnShared func(labels map[string]string)
	OnStore  func(labels map[string]string)
	OnError  func(labels map[string]string)
}

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
	negative  bool
	lastUsed  time.Time
}

// Cache is a TTL cache whose misses are coalesced: concurrent Gets for the same
// key while a load is running share that load.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]*entry[V]
	order   []string
	opts    Options[V]
	metrics MetricsHooks
	sf      singleflight.Group
	now     func() time.Time
}

func New[V any](opts Options[V], hooks MetricsHooks) *Cache[V] {
	return &Cache[V]{
		items:   make(map[string]*entry[V]),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// Loader fetches the value for key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

type loadResult[V any] struct {
	val V
	err error
}

// Get returns the cached value for key or loads it. The shared load runs
// detached from any one caller's cancellation, so a caller that gives up only
// returns early itself; the others still receive the result.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	if val, ok, err := c.lookup(key); ok {
		return val, err
	}

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss(map[string]string{"key": key})
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		val, err := loader(loadCtx, key)
		c.store(key, val, err)
		return loadResult[V]{val: val, err: err}, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Shared && c.metrics.OnShared != nil {
			c.metrics.OnShared(map[string]string{"key": key})
		}
		res := r.Val.(loadResult[V])
		if res.err != nil {
			return zero, res.err
		}
		return c.clone(res.val), nil
	}
}

// lookup returns a fresh entry. Expired entries are dropped.
func (c *Cache[V]) lookup(key string) (V, bool, error) {
	var zero V
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return zero, false, nil
	}
	if !now.Before(e.expiresAt) {
		delete(c.items, key)
		c.removeFromOrder(key)
		return zero, false, nil
	}
	e.lastUsed = now
	if c.metrics.OnHit != nil {
		c.metrics.OnHit(map[string]string{"key": key})
	}
	if e.negative {
		return zero, true, e.err
	}
	return c.clone(e.value), true, nil
}

func (c *Cache[V]) clone(v V) V {
	if c.opts.Clone == nil {
		return v
	}
	return c.opts.Clone(v)
}

func (c *Cache[V]) store(key string, val V, err error) {
	now := c.now()
	e := &entry[V]{lastUsed: now}
	if err == nil {
		if c.opts.TTL <= 0 {
			return
		}
		e.value = c.clone(val)
		e.expiresAt = now.Add(c.opts.TTL)
	} else {
		if c.opts.NegativeTTL <= 0 {
			// Do not store negatives
			if c.metrics.OnError != nil {
				c.metrics.OnError(map[string]string{"key": key})
			}
			return
		}
		e.err = err
		e.negative = true
		e.expiresAt = now.Add(c.opts.NegativeTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
	if c.metrics.OnStore != nil {
		c.metrics.OnStore(map[string]string{"key": key, "ok": boolStr(err == nil)})
	}
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache[V]) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO by insertion
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// CloneBytes is the Clone func for caches of raw response bodies.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
