package protocol_test

import (
	"context"
	"testing"

	"github.com/greg-py/mcp-forge/protocol"
)

func TestRequestMetaContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		meta := protocol.RequestMeta{"Authorization": "Bearer x"}
		ctx := protocol.ContextWithRequestMeta(context.Background(), meta)

		got := protocol.RequestMetaFromContext(ctx)
		if got["Authorization"] != "Bearer x" {
			t.Errorf("unexpected meta %v", got)
		}
	})

	t.Run("absent meta reads as nil", func(t *testing.T) {
		if got := protocol.RequestMetaFromContext(context.Background()); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("get single value", func(t *testing.T) {
		ctx := protocol.ContextWithRequestMeta(context.Background(),
			protocol.RequestMeta{"X-Api-Key": "k"})

		if got := protocol.GetRequestMeta(ctx, "X-Api-Key"); got != "k" {
			t.Errorf("expected 'k', got %q", got)
		}
		if got := protocol.GetRequestMeta(ctx, "missing"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("set copies instead of mutating", func(t *testing.T) {
		original := protocol.RequestMeta{"a": "1"}
		ctx := protocol.ContextWithRequestMeta(context.Background(), original)

		ctx2 := protocol.SetRequestMeta(ctx, "b", "2")

		if _, ok := original["b"]; ok {
			t.Error("SetRequestMeta must not mutate the stored map")
		}
		if got := protocol.GetRequestMeta(ctx2, "b"); got != "2" {
			t.Errorf("expected '2' in derived context, got %q", got)
		}
		if got := protocol.GetRequestMeta(ctx, "b"); got != "" {
			t.Error("original context must not see the new key")
		}
	})
}

func TestInvocationTrusted(t *testing.T) {
	t.Run("nil headers are trusted", func(t *testing.T) {
		inv := protocol.NewInvocation(protocol.KindTool, "t", nil, nil)
		if !inv.Trusted() {
			t.Error("expected trusted invocation")
		}
		if got := inv.Header("anything"); got != "" {
			t.Errorf("expected empty header, got %q", got)
		}
	})

	t.Run("empty headers are not trusted", func(t *testing.T) {
		inv := protocol.NewInvocation(protocol.KindTool, "t", nil, protocol.RequestMeta{})
		if inv.Trusted() {
			t.Error("a metadata-bearing transport is not trusted, even with no headers")
		}
	})
}
