package middleware

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/greg-py/mcp-forge/protocol"
)

func TestOTelMiddleware(t *testing.T) {
	t.Run("creates span for invocation", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
		)
		defer tp.Shutdown(context.Background())

		m := OTel(WithTracerProvider(tp))

		handler := m(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return protocol.NewTextResult("ok"), nil
		})

		inv := protocol.NewInvocation(protocol.KindTool, "search", nil, nil)
		if _, err := handler(context.Background(), inv); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}
		if spans[0].Name != "forge.tool.search" {
			t.Errorf("expected span name 'forge.tool.search', got %q", spans[0].Name)
		}
	})

	t.Run("records error on failure", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
		)
		defer tp.Shutdown(context.Background())

		m := OTel(WithTracerProvider(tp))

		wantErr := errors.New("handler failed")
		handler := m(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return nil, wantErr
		})

		inv := protocol.NewInvocation(protocol.KindTool, "search", nil, nil)
		if _, err := handler(context.Background(), inv); !errors.Is(err, wantErr) {
			t.Fatalf("expected handler error, got %v", err)
		}

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}
		if len(spans[0].Events) == 0 {
			t.Error("expected recorded error event on span")
		}
	})

	t.Run("error envelope marks span errored", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
		)
		defer tp.Shutdown(context.Background())

		m := OTel(WithTracerProvider(tp))

		handler := m(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return protocol.NewErrorResult("denied"), nil
		})

		inv := protocol.NewInvocation(protocol.KindTool, "search", nil, nil)
		if _, err := handler(context.Background(), inv); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		spans := exporter.GetSpans()
		if spans[0].Status.Description != "error envelope" {
			t.Errorf("expected errored span status, got %+v", spans[0].Status)
		}
	})

	t.Run("works with custom meter provider", func(t *testing.T) {
		mp := sdkmetric.NewMeterProvider()
		defer mp.Shutdown(context.Background())

		m := OTel(WithMeterProvider(mp), WithOTelServiceName("test-service"))

		handler := m(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return protocol.NewTextResult("ok"), nil
		})

		inv := protocol.NewInvocation(protocol.KindPrompt, "greet", nil, nil)
		if _, err := handler(context.Background(), inv); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
