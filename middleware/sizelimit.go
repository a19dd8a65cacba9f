package middleware

import (
	"context"
	"fmt"

	"github.com/greg-py/mcp-forge/protocol"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger Logger
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// SizeLimit returns middleware that rejects invocations whose serialized
// arguments exceed maxBytes.
func SizeLimit(maxBytes int64, opts ...SizeLimitOption) Middleware {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			if len(inv.Args) > 0 {
				serialized, err := protocol.CanonicalJSON(inv.Args)
				if err != nil {
					return nil, protocol.NewInternalError(err.Error())
				}
				if size := int64(len(serialized)); size > maxBytes {
					if cfg.logger != nil {
						cfg.logger.Warn("argument size limit exceeded",
							Field{Key: "kind", Value: string(inv.Kind)},
							Field{Key: "name", Value: inv.Name},
							Field{Key: "size", Value: size},
							Field{Key: "max", Value: maxBytes},
						)
					}
					return nil, &protocol.Error{
						Code:    protocol.CodeInvalidRequest,
						Message: fmt.Sprintf("argument size %d exceeds limit of %d bytes", size, maxBytes),
					}
				}
			}

			return next(ctx, inv)
		}
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
