package middleware

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/greg-py/mcp-forge/protocol"
)

// cacheEntry is a single cached result with its expiry.
type cacheEntry struct {
	key       string
	value     *protocol.Result
	expiresAt time.Time
}

// TTLCache is a TTL-expiring, LRU-evicting result store. Recency is
// tracked with an explicit access-order list: most-recently-used entries
// sit at the back, eviction takes from the front. TTL expiry is lazy
// (checked on read) with an optional periodic sweep for memory bounding.
type TTLCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	now      func() time.Time
}

// TTLCacheOption configures a TTLCache.
type TTLCacheOption func(*TTLCache)

// WithCacheClock sets the clock used for expiry. Intended for tests.
func WithCacheClock(now func() time.Time) TTLCacheOption {
	return func(c *TTLCache) {
		c.now = now
	}
}

// NewTTLCache creates a cache holding at most capacity entries.
func NewTTLCache(capacity int, opts ...TTLCacheOption) *TTLCache {
	c := &TTLCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. An expired entry is removed and
// reported as a miss; a hit refreshes the entry's recency.
func (c *TTLCache) Get(key string) (*protocol.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToBack(el)
	return entry.value, true
}

// Set stores value under key for ttl. When the cache is full the least
// recently used entry is evicted first.
func (c *TTLCache) Set(key string, value *protocol.Result, ttl time.Duration) {
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})
}

// Len returns the number of stored entries, including any not yet swept.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep removes expired entries. Purely a memory bound; Get handles
// expiry on access.
func (c *TTLCache) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*cacheEntry)
		if !now.Before(entry.expiresAt) {
			c.order.Remove(el)
			delete(c.entries, entry.key)
		}
	}
}

// StartJanitor sweeps expired entries at the given interval until ctx is done.
func (c *TTLCache) StartJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// CacheOption configures the cache middleware.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	kinds       map[protocol.Kind]bool
	keyFunc     func(*protocol.Invocation) (string, bool)
	onHit       func(*protocol.Invocation, string)
	onMiss      func(*protocol.Invocation, string)
	logger      Logger
	store       *TTLCache
	cacheErrors bool
}

// WithCacheKinds sets which handler kinds are cacheable. Default: tools only.
func WithCacheKinds(kinds ...protocol.Kind) CacheOption {
	return func(c *cacheConfig) {
		c.kinds = make(map[protocol.Kind]bool, len(kinds))
		for _, k := range kinds {
			c.kinds[k] = true
		}
	}
}

// WithCacheKeyFunc sets a custom cache key function. Returning false
// bypasses caching for that invocation.
func WithCacheKeyFunc(fn func(*protocol.Invocation) (string, bool)) CacheOption {
	return func(c *cacheConfig) {
		c.keyFunc = fn
	}
}

// WithCacheOnHit sets a hook invoked on every cache hit.
func WithCacheOnHit(fn func(*protocol.Invocation, string)) CacheOption {
	return func(c *cacheConfig) {
		c.onHit = fn
	}
}

// WithCacheOnMiss sets a hook invoked on every cache miss.
func WithCacheOnMiss(fn func(*protocol.Invocation, string)) CacheOption {
	return func(c *cacheConfig) {
		c.onMiss = fn
	}
}

// WithCacheLogger sets the logger for cache events.
func WithCacheLogger(l Logger) CacheOption {
	return func(c *cacheConfig) {
		c.logger = l
	}
}

// WithCacheStore supplies an externally managed store, letting the host
// share it across chains or run its janitor.
func WithCacheStore(store *TTLCache) CacheOption {
	return func(c *cacheConfig) {
		c.store = store
	}
}

// WithCacheErrorEnvelopes also caches error envelopes. By default only
// successful results are stored, so transient failures (timeouts, rate
// limit denials, handler errors) are retried instead of served from
// cache for the full TTL.
func WithCacheErrorEnvelopes() CacheOption {
	return func(c *cacheConfig) {
		c.cacheErrors = true
	}
}

// CacheKey derives the default cache key: kind, name and the canonical
// JSON serialization of the arguments.
func CacheKey(inv *protocol.Invocation) (string, bool) {
	args, err := protocol.CanonicalJSON(inv.Args)
	if err != nil {
		return "", false
	}
	return string(inv.Kind) + ":" + inv.Name + ":" + args, true
}

// Cache returns middleware that serves repeated invocations from a
// TTL+LRU store. A hit short-circuits the chain and returns the stored
// result; on a miss the downstream result is stored when the chain
// completed without error and the envelope is not an error (see
// WithCacheErrorEnvelopes).
//
// Concurrent misses for the same key are not deduplicated: both proceed
// to the handler and the last write wins.
func Cache(ttl time.Duration, maxEntries int, opts ...CacheOption) Middleware {
	cfg := &cacheConfig{
		kinds:   map[protocol.Kind]bool{protocol.KindTool: true},
		keyFunc: CacheKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.store == nil {
		cfg.store = NewTTLCache(maxEntries)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			if !cfg.kinds[inv.Kind] {
				return next(ctx, inv)
			}
			key, ok := cfg.keyFunc(inv)
			if !ok {
				return next(ctx, inv)
			}

			if res, hit := cfg.store.Get(key); hit {
				if cfg.logger != nil {
					cfg.logger.Debug("cache hit",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
					)
				}
				if cfg.onHit != nil {
					cfg.onHit(inv, key)
				}
				return res, nil
			}

			if cfg.onMiss != nil {
				cfg.onMiss(inv, key)
			}

			res, err := next(ctx, inv)
			if err == nil && res != nil && (!res.IsError || cfg.cacheErrors) {
				cfg.store.Set(key, res, ttl)
			}
			return res, err
		}
	}
}
