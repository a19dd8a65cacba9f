package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/greg-py/mcp-forge/protocol"
)

const instrumentationName = "github.com/greg-py/mcp-forge"

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithOTelServiceName sets the service name for telemetry.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// OTel returns middleware that adds OpenTelemetry tracing and metrics.
// It creates a span per invocation and records call counts, error counts
// and latency.
func OTel(opts ...OTelOption) Middleware {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "mcp-forge",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)

	meter := cfg.meterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	invocationCounter, _ := meter.Int64Counter(
		"forge.dispatch.invocations",
		metric.WithDescription("Total number of dispatched invocations"),
		metric.WithUnit("{invocation}"),
	)

	invocationDuration, _ := meter.Float64Histogram(
		"forge.dispatch.duration",
		metric.WithDescription("Duration of dispatched invocations"),
		metric.WithUnit("ms"),
	)

	errorCounter, _ := meter.Int64Counter(
		"forge.dispatch.errors",
		metric.WithDescription("Total number of failed invocations"),
		metric.WithUnit("{error}"),
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			spanName := "forge." + string(inv.Kind) + "." + inv.Name
			ctx, span := tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("forge.kind", string(inv.Kind)),
					attribute.String("forge.name", inv.Name),
					attribute.String("service.name", cfg.serviceName),
				),
			)
			defer span.End()

			if reqID := RequestIDFromContext(ctx); reqID != "" {
				span.SetAttributes(attribute.String("forge.request_id", reqID))
			}

			attrs := []attribute.KeyValue{
				attribute.String("forge.kind", string(inv.Kind)),
				attribute.String("forge.name", inv.Name),
				attribute.String("service.name", cfg.serviceName),
			}

			invocationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			startTime := time.Now()

			res, err := next(ctx, inv)

			duration := float64(time.Since(startTime).Milliseconds())
			invocationDuration.Record(ctx, duration, metric.WithAttributes(attrs...))

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())

				var perr *protocol.Error
				if errors.As(err, &perr) {
					span.SetAttributes(attribute.Int("forge.error_code", perr.Code))
					errorCounter.Add(ctx, 1, metric.WithAttributes(
						append(attrs, attribute.Int("forge.error_code", perr.Code))...,
					))
				} else {
					errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
				}
			case res != nil && res.IsError:
				span.SetStatus(codes.Error, "error envelope")
				errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			default:
				span.SetStatus(codes.Ok, "")
			}

			return res, err
		}
	}
}

// SpanFromContext returns the current span from context.
// Returns a no-op span if no span is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
