package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greg-py/mcp-forge/middleware"
	"github.com/greg-py/mcp-forge/protocol"
)

func TestBackoffPolicy(t *testing.T) {
	t.Run("exponential growth without jitter", func(t *testing.T) {
		p := middleware.BackoffPolicy{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		}

		cases := []struct {
			attempt int
			want    time.Duration
		}{
			{1, time.Second},
			{2, 2 * time.Second},
			{3, 4 * time.Second},
			{4, 8 * time.Second},
		}
		for _, tc := range cases {
			if got := p.Delay(tc.attempt); got != tc.want {
				t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
			}
		}
	})

	t.Run("caps at max delay", func(t *testing.T) {
		p := middleware.BackoffPolicy{
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		}

		if got := p.Delay(10); got != 5*time.Second {
			t.Errorf("Delay(10) = %v, want cap of 5s", got)
		}
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		p := middleware.BackoffPolicy{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			Jitter:       0.5,
		}

		// Delay for attempt 2 is 2s nominal, jitter ±50% → [1s, 3s].
		for i := 0; i < 100; i++ {
			got := p.Delay(2)
			if got < time.Second || got > 3*time.Second {
				t.Fatalf("jittered delay %v outside [1s, 3s]", got)
			}
		}
	})

	t.Run("non-positive attempt yields zero", func(t *testing.T) {
		p := middleware.DefaultBackoff
		if got := p.Delay(0); got != 0 {
			t.Errorf("Delay(0) = %v, want 0", got)
		}
	})

	t.Run("multiplier below one treated as one", func(t *testing.T) {
		p := middleware.BackoffPolicy{
			InitialDelay: time.Second,
			Multiplier:   0.5,
		}
		if got := p.Delay(3); got != time.Second {
			t.Errorf("Delay(3) = %v, want 1s with flat multiplier", got)
		}
	})
}

func fastBackoff() middleware.BackoffPolicy {
	return middleware.BackoffPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		handler := middleware.Retry(3, middleware.WithRetryBackoff(fastBackoff()))(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				calls++
				return okHandler(ctx, inv)
			})

		if _, err := handler(context.Background(), testInvocation()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		handler := middleware.Retry(3, middleware.WithRetryBackoff(fastBackoff()))(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				calls++
				if calls < 3 {
					return nil, errors.New("transient")
				}
				return okHandler(ctx, inv)
			})

		res, err := handler(context.Background(), testInvocation())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.IsError {
			t.Error("expected success result")
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("exhaustion returns last error", func(t *testing.T) {
		calls := 0
		lastErr := errors.New("always failing")
		handler := middleware.Retry(2, middleware.WithRetryBackoff(fastBackoff()))(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				calls++
				return nil, lastErr
			})

		_, err := handler(context.Background(), testInvocation())
		if !errors.Is(err, lastErr) {
			t.Fatalf("expected last error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected maxRetries+1 = 3 attempts, got %d", calls)
		}
	})

	t.Run("non-retryable errors fail immediately", func(t *testing.T) {
		nonRetryable := []*protocol.Error{
			protocol.NewUnauthorized("no"),
			protocol.NewInvalidParams("bad"),
			protocol.NewNotFound("missing"),
			protocol.NewDuplicate("dup"),
		}

		for _, perr := range nonRetryable {
			calls := 0
			handler := middleware.Retry(3, middleware.WithRetryBackoff(fastBackoff()))(
				func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
					calls++
					return nil, perr
				})

			_, err := handler(context.Background(), testInvocation())
			if !errors.Is(err, perr) {
				t.Fatalf("code %d: expected original error, got %v", perr.Code, err)
			}
			if calls != 1 {
				t.Errorf("code %d: expected 1 attempt, got %d", perr.Code, calls)
			}
		}
	})

	t.Run("custom classifier controls retries", func(t *testing.T) {
		calls := 0
		handler := middleware.Retry(3,
			middleware.WithRetryBackoff(fastBackoff()),
			middleware.WithRetryClassifier(func(error, *protocol.Invocation) bool { return false }),
		)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			calls++
			return nil, errors.New("whatever")
		})

		handler(context.Background(), testInvocation())
		if calls != 1 {
			t.Errorf("expected classifier to stop retries, got %d attempts", calls)
		}
	})

	t.Run("callback observes each retry", func(t *testing.T) {
		var attempts []int
		handler := middleware.Retry(2,
			middleware.WithRetryBackoff(fastBackoff()),
			middleware.WithRetryCallback(func(_ *protocol.Invocation, attempt int, _ error, _ time.Duration) {
				attempts = append(attempts, attempt)
			}),
		)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return nil, errors.New("fail")
		})

		handler(context.Background(), testInvocation())
		if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
			t.Errorf("expected callbacks for attempts [1 2], got %v", attempts)
		}
	})

	t.Run("context cancellation stops the backoff sleep", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		handler := middleware.Retry(3,
			middleware.WithRetryBackoff(middleware.BackoffPolicy{
				InitialDelay: time.Hour,
				Multiplier:   2,
			}),
		)(func(c context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			calls++
			cancel()
			return nil, errors.New("fail")
		})

		start := time.Now()
		_, err := handler(ctx, testInvocation())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt before cancellation, got %d", calls)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("cancellation should interrupt the sleep, took %v", elapsed)
		}
	})
}
