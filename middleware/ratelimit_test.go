package middleware_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/greg-py/mcp-forge/middleware"
	"github.com/greg-py/mcp-forge/protocol"
)

// fakeClock is a manually advanced clock for limiter and cache tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWindowLimiter(t *testing.T) {
	t.Run("allows exactly max per window", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(3, time.Minute, middleware.WithWindowClock(clock.Now))

		for i := 0; i < 3; i++ {
			if ok, _ := l.Allow("k"); !ok {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}
		if ok, _ := l.Allow("k"); ok {
			t.Error("request 4 should be denied")
		}
	})

	t.Run("denial reports time until reset", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(1, time.Minute, middleware.WithWindowClock(clock.Now))

		l.Allow("k")
		clock.Advance(20 * time.Second)

		ok, retryAfter := l.Allow("k")
		if ok {
			t.Fatal("expected denial")
		}
		if retryAfter != 40*time.Second {
			t.Errorf("expected retryAfter 40s, got %v", retryAfter)
		}
	})

	t.Run("denied requests do not consume quota", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(2, time.Minute, middleware.WithWindowClock(clock.Now))

		l.Allow("k")
		l.Allow("k")
		// Hammer the limiter while full; denials must not extend the count.
		for i := 0; i < 10; i++ {
			if ok, _ := l.Allow("k"); ok {
				t.Fatal("expected denial while window is full")
			}
		}

		clock.Advance(time.Minute)
		for i := 0; i < 2; i++ {
			if ok, _ := l.Allow("k"); !ok {
				t.Fatalf("request %d after reset should be allowed", i+1)
			}
		}
	})

	t.Run("window resets after elapse", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(1, time.Minute, middleware.WithWindowClock(clock.Now))

		l.Allow("k")
		if ok, _ := l.Allow("k"); ok {
			t.Fatal("expected denial within window")
		}

		clock.Advance(61 * time.Second)
		if ok, _ := l.Allow("k"); !ok {
			t.Error("expected allow after window elapsed")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(1, time.Minute, middleware.WithWindowClock(clock.Now))

		l.Allow("a")
		if ok, _ := l.Allow("b"); !ok {
			t.Error("key b should have its own bucket")
		}
	})

	t.Run("sweep removes expired buckets", func(t *testing.T) {
		clock := newFakeClock()
		l := middleware.NewWindowLimiter(1, time.Minute, middleware.WithWindowClock(clock.Now))

		l.Allow("a")
		l.Allow("b")
		if got := l.Len(); got != 2 {
			t.Fatalf("expected 2 buckets, got %d", got)
		}

		clock.Advance(2 * time.Minute)
		l.Sweep()
		if got := l.Len(); got != 0 {
			t.Errorf("expected 0 buckets after sweep, got %d", got)
		}
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		m := middleware.RateLimit(10, time.Minute)
		handler := m(okHandler)

		for i := 0; i < 5; i++ {
			res, err := handler(context.Background(), testInvocation())
			if err != nil {
				t.Fatalf("request %d: unexpected error: %v", i, err)
			}
			if res.IsError {
				t.Fatalf("request %d: unexpected error envelope", i)
			}
		}
	})

	t.Run("denial short-circuits with error envelope", func(t *testing.T) {
		m := middleware.RateLimit(1, time.Minute)

		handlerCalls := 0
		handler := m(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			handlerCalls++
			return okHandler(ctx, inv)
		})

		if _, err := handler(context.Background(), testInvocation()); err != nil {
			t.Fatalf("first request failed: %v", err)
		}

		res, err := handler(context.Background(), testInvocation())
		if err != nil {
			t.Fatalf("denial must not surface as a chain error, got %v", err)
		}
		if !res.IsError {
			t.Fatal("expected error envelope on denial")
		}
		if !strings.Contains(res.Content[0].Text, "rate limit exceeded") {
			t.Errorf("unexpected denial message %q", res.Content[0].Text)
		}
		if handlerCalls != 1 {
			t.Errorf("handler should run once, ran %d times", handlerCalls)
		}
	})

	t.Run("buckets are per handler by default", func(t *testing.T) {
		m := middleware.RateLimit(1, time.Minute)
		handler := m(okHandler)

		inv1 := protocol.NewInvocation(protocol.KindTool, "a", nil, nil)
		inv2 := protocol.NewInvocation(protocol.KindTool, "b", nil, nil)

		if res, _ := handler(context.Background(), inv1); res.IsError {
			t.Fatal("first call on tool a should pass")
		}
		if res, _ := handler(context.Background(), inv2); res.IsError {
			t.Error("tool b should have its own bucket")
		}
	})

	t.Run("global option shares one bucket", func(t *testing.T) {
		m := middleware.RateLimit(1, time.Minute, middleware.WithRateLimitGlobal())
		handler := m(okHandler)

		inv1 := protocol.NewInvocation(protocol.KindTool, "a", nil, nil)
		inv2 := protocol.NewInvocation(protocol.KindTool, "b", nil, nil)

		if res, _ := handler(context.Background(), inv1); res.IsError {
			t.Fatal("first call should pass")
		}
		if res, _ := handler(context.Background(), inv2); !res.IsError {
			t.Error("second call should share the global bucket and be denied")
		}
	})

	t.Run("empty key bypasses limiting", func(t *testing.T) {
		m := middleware.RateLimit(1, time.Minute,
			middleware.WithRateLimitKeyFunc(func(*protocol.Invocation) string { return "" }))
		handler := m(okHandler)

		for i := 0; i < 5; i++ {
			res, err := handler(context.Background(), testInvocation())
			if err != nil || res.IsError {
				t.Fatalf("request %d should bypass limiting", i)
			}
		}
	})

	t.Run("callback fires on denial", func(t *testing.T) {
		var denied int
		var lastRetryAfter time.Duration
		m := middleware.RateLimit(1, time.Minute,
			middleware.WithRateLimitCallback(func(_ *protocol.Invocation, retryAfter time.Duration) {
				denied++
				lastRetryAfter = retryAfter
			}))
		handler := m(okHandler)

		handler(context.Background(), testInvocation())
		handler(context.Background(), testInvocation())

		if denied != 1 {
			t.Fatalf("expected 1 denial callback, got %d", denied)
		}
		if lastRetryAfter <= 0 || lastRetryAfter > time.Minute {
			t.Errorf("retryAfter %v out of range", lastRetryAfter)
		}
	})
}

func TestRateLimitTokenBucket(t *testing.T) {
	t.Run("allows burst then denies", func(t *testing.T) {
		m := middleware.RateLimitTokenBucket(1, 2)
		handler := m(okHandler)

		for i := 0; i < 2; i++ {
			if _, err := handler(context.Background(), testInvocation()); err != nil {
				t.Fatalf("burst request %d failed: %v", i, err)
			}
		}

		_, err := handler(context.Background(), testInvocation())
		if err == nil {
			t.Fatal("expected rate limited error after burst")
		}
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			t.Fatalf("expected protocol.Error, got %T", err)
		}
		if perr.Code != protocol.CodeRateLimited {
			t.Errorf("expected code %d, got %d", protocol.CodeRateLimited, perr.Code)
		}
	})
}
