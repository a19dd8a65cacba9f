package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/greg-py/mcp-forge/protocol"
)

// bucket is the per-key fixed-window state.
type bucket struct {
	count   int
	resetAt time.Time
}

// WindowLimiter counts invocations per key in fixed windows. A bucket is
// created lazily on first use and replaced when its window has elapsed;
// expiry is checked on every access, so correctness never depends on the
// background sweep.
type WindowLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	window  time.Duration
	now     func() time.Time
}

// WindowLimiterOption configures a WindowLimiter.
type WindowLimiterOption func(*WindowLimiter)

// WithWindowClock sets the clock used by the limiter. Intended for tests.
func WithWindowClock(now func() time.Time) WindowLimiterOption {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// NewWindowLimiter creates a fixed-window limiter allowing max requests
// per window per key.
func NewWindowLimiter(max int, window time.Duration, opts ...WindowLimiterOption) *WindowLimiter {
	l := &WindowLimiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether another request for key fits in the current
// window. On denial it returns the time remaining until the window resets.
// The counter is only incremented on the allowing path.
func (l *WindowLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}

	if b.count >= l.max {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// Sweep removes buckets whose window has elapsed. Purely a memory bound;
// Allow handles expiry on access.
func (l *WindowLimiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
		}
	}
}

// Len returns the number of live buckets.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartJanitor sweeps expired buckets once per window until ctx is done.
func (l *WindowLimiter) StartJanitor(ctx context.Context) {
	t := time.NewTicker(l.window)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

// RateLimitOption configures the rate limit middleware.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	keyFunc       func(*protocol.Invocation) string
	onRateLimited func(*protocol.Invocation, time.Duration)
	logger        Logger
	limiter       *WindowLimiter
}

// WithRateLimitKeyFunc sets a function to derive a rate limit key from an
// invocation, e.g. a user ID from auth data. Returning an empty string
// bypasses limiting for that call.
func WithRateLimitKeyFunc(fn func(*protocol.Invocation) string) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.keyFunc = fn
	}
}

// WithRateLimitGlobal makes all invocations share a single bucket instead
// of the default per-handler buckets.
func WithRateLimitGlobal() RateLimitOption {
	return WithRateLimitKeyFunc(func(_ *protocol.Invocation) string { return "global" })
}

// WithRateLimitCallback sets a hook invoked on every denied request with
// the time remaining until the window resets.
func WithRateLimitCallback(fn func(*protocol.Invocation, time.Duration)) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.onRateLimited = fn
	}
}

// WithRateLimitLogger sets the logger for rate limit events.
func WithRateLimitLogger(l Logger) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.logger = l
	}
}

// WithRateLimiter supplies an externally managed limiter, letting the host
// share it across chains or run its janitor.
func WithRateLimiter(l *WindowLimiter) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.limiter = l
	}
}

// RateLimit returns middleware enforcing a fixed-window limit of
// maxRequests per window. Buckets are keyed per handler (kind and name)
// by default. A denied invocation short-circuits the chain with the
// standard error envelope; the handler is never called and the chain
// itself does not observe an error.
func RateLimit(maxRequests int, window time.Duration, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc: func(inv *protocol.Invocation) string {
			return string(inv.Kind) + ":" + inv.Name
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.limiter == nil {
		cfg.limiter = NewWindowLimiter(maxRequests, window)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			key := cfg.keyFunc(inv)
			if key == "" {
				return next(ctx, inv)
			}

			ok, retryAfter := cfg.limiter.Allow(key)
			if !ok {
				if cfg.logger != nil {
					cfg.logger.Warn("rate limit exceeded",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
						Field{Key: "key", Value: key},
						Field{Key: "retry_after", Value: retryAfter},
					)
				}
				if cfg.onRateLimited != nil {
					cfg.onRateLimited(inv, retryAfter)
				}
				return protocol.NewErrorResult(fmt.Sprintf(
					"rate limit exceeded, retry in %dms", retryAfter.Milliseconds())), nil
			}

			return next(ctx, inv)
		}
	}
}

// RateLimitTokenBucket returns middleware that limits request rate using a
// token bucket. The rate is specified as requests per second; burst allows
// short bursts above it. Unlike the fixed-window RateLimit, denials here
// surface as rate-limited errors rather than short-circuit envelopes,
// matching bucket semantics where no window reset time exists.
func RateLimitTokenBucket(rate int, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc: func(_ *protocol.Invocation) string { return "global" },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			key := cfg.keyFunc(inv)
			if key == "" {
				return next(ctx, inv)
			}

			if !limiter.Allow(ctx, key) {
				if cfg.logger != nil {
					cfg.logger.Warn("rate limit exceeded",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
						Field{Key: "key", Value: key},
					)
				}
				if cfg.onRateLimited != nil {
					cfg.onRateLimited(inv, 0)
				}
				return nil, protocol.NewRateLimited("rate limit exceeded")
			}

			return next(ctx, inv)
		}
	}
}
