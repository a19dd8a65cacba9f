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

func TestTimeout(t *testing.T) {
	t.Run("fast handler wins the race", func(t *testing.T) {
		handler := middleware.Timeout(time.Second)(okHandler)

		res, err := handler(context.Background(), testInvocation())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.IsError {
			t.Error("expected success result")
		}
	})

	t.Run("slow handler yields timeout envelope", func(t *testing.T) {
		handler := middleware.Timeout(10 * time.Millisecond)(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				time.Sleep(200 * time.Millisecond)
				return okHandler(ctx, inv)
			})

		res, err := handler(context.Background(), testInvocation())
		if err != nil {
			t.Fatalf("timeout must not surface as a chain error, got %v", err)
		}
		if !res.IsError {
			t.Fatal("expected error envelope on timeout")
		}
		if !strings.Contains(res.Content[0].Text, "timed out") {
			t.Errorf("unexpected timeout message %q", res.Content[0].Text)
		}
	})

	t.Run("handler error passes through within deadline", func(t *testing.T) {
		wantErr := errors.New("handler failed")
		handler := middleware.Timeout(time.Second)(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				return nil, wantErr
			})

		_, err := handler(context.Background(), testInvocation())
		if !errors.Is(err, wantErr) {
			t.Errorf("expected handler error, got %v", err)
		}
	})

	t.Run("late result is discarded, handler keeps running", func(t *testing.T) {
		finished := make(chan struct{})
		handler := middleware.Timeout(10 * time.Millisecond)(
			func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
				defer close(finished)
				time.Sleep(50 * time.Millisecond)
				return protocol.NewTextResult("late"), nil
			})

		res, err := handler(context.Background(), testInvocation())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.IsError {
			t.Fatal("expected timeout envelope, not the late result")
		}

		// The abandoned handler still completes; its send must not block.
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("abandoned handler never finished")
		}
	})

	t.Run("error mode surfaces a timeout code", func(t *testing.T) {
		handler := middleware.Timeout(10*time.Millisecond,
			middleware.WithTimeoutError(),
		)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			time.Sleep(100 * time.Millisecond)
			return okHandler(ctx, inv)
		})

		res, err := handler(context.Background(), testInvocation())
		if res != nil {
			t.Errorf("expected no envelope in error mode, got %+v", res)
		}
		if !errors.Is(err, protocol.NewTimeout("")) {
			t.Errorf("expected timeout error code, got %v", err)
		}
	})

	t.Run("custom message", func(t *testing.T) {
		handler := middleware.Timeout(10*time.Millisecond,
			middleware.WithTimeoutMessage("deadline blown"),
		)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			time.Sleep(100 * time.Millisecond)
			return okHandler(ctx, inv)
		})

		res, _ := handler(context.Background(), testInvocation())
		if res.Content[0].Text != "Error: deadline blown" {
			t.Errorf("unexpected message %q", res.Content[0].Text)
		}
	})

	t.Run("callback fires on timeout", func(t *testing.T) {
		fired := false
		handler := middleware.Timeout(10*time.Millisecond,
			middleware.WithTimeoutCallback(func(*protocol.Invocation) { fired = true }),
		)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			time.Sleep(100 * time.Millisecond)
			return okHandler(ctx, inv)
		})

		handler(context.Background(), testInvocation())
		if !fired {
			t.Error("expected timeout callback")
		}
	})
}
