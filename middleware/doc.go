// Package middleware provides the invocation middleware chain and the
// built-in policies that compose onto it.
//
// Middleware follows the standard onion pattern: each middleware wraps the
// next handler, sees the invocation on the way in and the result or error
// on the way out, and may short-circuit by returning without calling the
// handler it wraps.
//
// # Basic Usage
//
// Create and compose middleware:
//
//	chain := middleware.Chain(
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
//	handler := chain(terminal)
//
// # Policy Middleware
//
//   - RateLimit: fixed-window limiting keyed per handler; denials
//     short-circuit with the standard error envelope and a retry hint
//   - RateLimitTokenBucket: burst-tolerant token-bucket variant
//   - Cache: TTL+LRU result caching, tools by default
//   - Retry: sequential re-attempts with exponential backoff and jitter
//   - Timeout: races the chain against a timer; late results are dropped
//   - Metrics: per-handler running statistics plus bounded raw samples
//   - AuthGate: credential extraction and validation with a
//     trusted-local bypass
//   - OTel: OpenTelemetry spans and instruments per invocation
//
// # Ambient Middleware
//
//   - Recover: catches panics and converts them to internal errors
//   - RequestID: injects unique request IDs into the context
//   - Logging: logs invocation details and timing
//   - SizeLimit: bounds serialized argument size
//
// # Default Stacks
//
// Pre-configured stacks for common cases:
//
//	// Recover + RequestID + Logging
//	stack := middleware.DefaultStack(logger)
//
//	// Recover + RequestID + Timeout + Logging
//	stack := middleware.DefaultStackWithTimeout(logger, 30*time.Second)
//
// # Custom Middleware
//
// Implement custom middleware using the Middleware type:
//
//	func Audit(sink AuditSink) middleware.Middleware {
//	    return func(next middleware.HandlerFunc) middleware.HandlerFunc {
//	        return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
//	            sink.Record(inv.Kind, inv.Name)
//	            return next(ctx, inv)
//	        }
//	    }
//	}
package middleware
