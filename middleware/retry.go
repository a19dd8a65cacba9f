package middleware

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/greg-py/mcp-forge/protocol"
)

// BackoffPolicy computes exponential retry delays with proportional jitter.
type BackoffPolicy struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt. Values below 1 are
	// treated as 1.
	Multiplier float64
	// Jitter is the fraction of the delay randomized in both
	// directions: delay ± delay*Jitter. Zero disables jitter.
	Jitter float64
}

// DefaultBackoff is the retry middleware's default policy.
var DefaultBackoff = BackoffPolicy{
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
	Jitter:       0.1,
}

// Delay returns the delay before retry number attempt (1-based):
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay), with jitter drawn
// uniformly from [-Jitter, +Jitter] of the delay, clamped to zero and
// rounded to whole milliseconds.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			break
		}
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		// Uniform in [-1, 1), thread-safe via math/rand/v2.
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
		if delay < 0 {
			delay = 0
		}
	}

	ms := math.Round(delay / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// RetryOption configures the retry middleware.
type RetryOption func(*retryConfig)

type retryConfig struct {
	backoff     BackoffPolicy
	shouldRetry func(error, *protocol.Invocation) bool
	onRetry     func(*protocol.Invocation, int, error, time.Duration)
	logger      Logger
}

// WithRetryBackoff sets the backoff policy.
func WithRetryBackoff(p BackoffPolicy) RetryOption {
	return func(c *retryConfig) {
		c.backoff = p
	}
}

// WithRetryClassifier sets the predicate deciding whether an error is
// retried. The default retries handler failures but never auth,
// validation or not-found errors.
func WithRetryClassifier(fn func(error, *protocol.Invocation) bool) RetryOption {
	return func(c *retryConfig) {
		c.shouldRetry = fn
	}
}

// WithRetryCallback sets a hook invoked before each retry with the
// attempt number that failed, its error and the upcoming delay.
func WithRetryCallback(fn func(*protocol.Invocation, int, error, time.Duration)) RetryOption {
	return func(c *retryConfig) {
		c.onRetry = fn
	}
}

// WithRetryLogger sets the logger for retry events.
func WithRetryLogger(l Logger) RetryOption {
	return func(c *retryConfig) {
		c.logger = l
	}
}

// defaultShouldRetry retries handler-class failures only. Errors that
// will fail identically on every attempt are not worth repeating.
func defaultShouldRetry(err error, _ *protocol.Invocation) bool {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case protocol.CodeUnauthorized,
			protocol.CodeInvalidParams,
			protocol.CodeInvalidRequest,
			protocol.CodeNotFound,
			protocol.CodeMethodNotFound,
			protocol.CodeDuplicate:
			return false
		}
	}
	return true
}

// Retry returns middleware that re-runs the downstream chain on failure,
// up to maxRetries additional attempts (maxRetries+1 total). Attempts are
// strictly sequential; the sleep between them respects ctx cancellation.
// When attempts are exhausted the last error is returned unchanged.
func Retry(maxRetries int, opts ...RetryOption) Middleware {
	cfg := &retryConfig{
		backoff:     DefaultBackoff,
		shouldRetry: defaultShouldRetry,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			attempts := maxRetries + 1
			var lastErr error

			for attempt := 1; attempt <= attempts; attempt++ {
				res, err := next(ctx, inv)
				if err == nil {
					if attempt > 1 && cfg.logger != nil {
						cfg.logger.Info("invocation succeeded after retry",
							Field{Key: "kind", Value: string(inv.Kind)},
							Field{Key: "name", Value: inv.Name},
							Field{Key: "attempt", Value: attempt},
						)
					}
					return res, nil
				}

				if !cfg.shouldRetry(err, inv) {
					return res, err
				}
				lastErr = err

				if attempt == attempts {
					break
				}

				delay := cfg.backoff.Delay(attempt)
				if cfg.onRetry != nil {
					cfg.onRetry(inv, attempt, err, delay)
				}
				if cfg.logger != nil {
					cfg.logger.Debug("retrying after backoff",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
						Field{Key: "attempt", Value: attempt},
						Field{Key: "delay", Value: delay},
						Field{Key: "error", Value: err.Error()},
					)
				}

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			return nil, lastErr
		}
	}
}
