package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/greg-py/mcp-forge/protocol"
)

// TimeoutOption configures the timeout middleware.
type TimeoutOption func(*timeoutConfig)

type timeoutConfig struct {
	message   string
	onTimeout func(*protocol.Invocation)
	logger    Logger
	asError   bool
}

// WithTimeoutMessage sets the message carried by the timeout envelope.
func WithTimeoutMessage(msg string) TimeoutOption {
	return func(c *timeoutConfig) {
		c.message = msg
	}
}

// WithTimeoutCallback sets a hook invoked whenever the deadline fires.
func WithTimeoutCallback(fn func(*protocol.Invocation)) TimeoutOption {
	return func(c *timeoutConfig) {
		c.onTimeout = fn
	}
}

// WithTimeoutLogger sets the logger for timeout events.
func WithTimeoutLogger(l Logger) TimeoutOption {
	return func(c *timeoutConfig) {
		c.logger = l
	}
}

// WithTimeoutError makes the deadline surface as a CodeTimeout error
// instead of the error envelope, for chains where upstream middleware or
// the host classifies failures by error code.
func WithTimeoutError() TimeoutOption {
	return func(c *timeoutConfig) {
		c.asError = true
	}
}

// settled carries the downstream outcome across the race.
type settled struct {
	res *protocol.Result
	err error
}

// Timeout returns middleware that races the downstream chain against a
// timer. If the timer fires first the chain resolves with the standard
// timeout error envelope; the handler keeps running unobserved and its
// eventual result is discarded. No cancellation is signalled downstream,
// so handlers must tolerate being abandoned mid-flight. Whichever side
// settles first wins.
func Timeout(d time.Duration, opts ...TimeoutOption) Middleware {
	cfg := &timeoutConfig{
		message: fmt.Sprintf("request timed out after %dms", d.Milliseconds()),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			// Buffered so a late handler settles without a receiver.
			done := make(chan settled, 1)
			go func() {
				res, err := next(ctx, inv)
				done <- settled{res: res, err: err}
			}()

			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case s := <-done:
				return s.res, s.err
			case <-timer.C:
				if cfg.logger != nil {
					cfg.logger.Warn("invocation timed out",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
						Field{Key: "timeout", Value: d},
					)
				}
				if cfg.onTimeout != nil {
					cfg.onTimeout(inv)
				}
				if cfg.asError {
					return nil, protocol.NewTimeout(cfg.message)
				}
				return protocol.NewErrorResult(cfg.message), nil
			}
		}
	}
}
