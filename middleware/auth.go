package middleware

import (
	"context"
	"strings"

	"github.com/greg-py/mcp-forge/protocol"
)

// TokenExtractor pulls a credential from an invocation's transport
// metadata. Returning an empty string means no credential was presented.
type TokenExtractor func(*protocol.Invocation) string

// TokenValidator validates a token and returns the auth data to attach to
// the invocation. A nil map or an error rejects the token.
type TokenValidator func(ctx context.Context, token string) (map[string]any, error)

// AuthOption configures the auth gate.
type AuthOption func(*authConfig)

type authConfig struct {
	extract        TokenExtractor
	missingMessage string
	invalidMessage string
	skipLocal      bool
	logger         Logger
}

// WithAuthTokenExtractor sets a custom credential extractor. The default
// reads a bearer token from the Authorization header.
func WithAuthTokenExtractor(fn TokenExtractor) AuthOption {
	return func(c *authConfig) {
		c.extract = fn
	}
}

// WithAuthMissingMessage sets the error message for absent credentials.
func WithAuthMissingMessage(msg string) AuthOption {
	return func(c *authConfig) {
		c.missingMessage = msg
	}
}

// WithAuthInvalidMessage sets the error message for rejected credentials.
func WithAuthInvalidMessage(msg string) AuthOption {
	return func(c *authConfig) {
		c.invalidMessage = msg
	}
}

// WithAuthRequireLocal disables the trusted-local bypass, forcing
// credential checks even for invocations without transport metadata.
func WithAuthRequireLocal() AuthOption {
	return func(c *authConfig) {
		c.skipLocal = false
	}
}

// WithAuthLogger sets the logger for auth events.
func WithAuthLogger(l Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = l
	}
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(inv *protocol.Invocation) string {
	auth := inv.Header("Authorization")
	if auth == "" {
		auth = inv.Header("authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// HeaderToken returns an extractor reading the credential from a named
// transport metadata key.
func HeaderToken(name string) TokenExtractor {
	return func(inv *protocol.Invocation) string {
		if v := inv.Header(name); v != "" {
			return v
		}
		return inv.Header(strings.ToLower(name))
	}
}

// StaticTokens creates a validator from a fixed token -> auth data map.
func StaticTokens(tokens map[string]map[string]any) TokenValidator {
	return func(_ context.Context, token string) (map[string]any, error) {
		return tokens[token], nil
	}
}

// AuthGate returns middleware that authenticates invocations before the
// handler runs. Invocations arriving without transport metadata are
// treated as trusted local calls and bypass validation by default; the
// host can disable that with WithAuthRequireLocal. On success the auth
// data is attached to the invocation exactly once for downstream
// middleware and the handler to read.
func AuthGate(validate TokenValidator, opts ...AuthOption) Middleware {
	cfg := &authConfig{
		extract:        BearerToken,
		missingMessage: "authentication required",
		invalidMessage: "invalid credentials",
		skipLocal:      true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			if cfg.skipLocal && inv.Trusted() {
				return next(ctx, inv)
			}

			token := cfg.extract(inv)
			if token == "" {
				if cfg.logger != nil {
					cfg.logger.Warn("missing credentials",
						Field{Key: "kind", Value: string(inv.Kind)},
						Field{Key: "name", Value: inv.Name},
					)
				}
				return nil, protocol.NewUnauthorized(cfg.missingMessage)
			}

			data, err := validate(ctx, token)
			if err != nil || data == nil {
				if cfg.logger != nil {
					fields := []Field{
						F("kind", string(inv.Kind)),
						F("name", inv.Name),
					}
					if err != nil {
						fields = append(fields, F("error", err.Error()))
					}
					cfg.logger.Warn("authentication failed", fields...)
				}
				return nil, protocol.NewUnauthorized(cfg.invalidMessage)
			}

			if err := inv.SetAuth(data); err != nil {
				return nil, protocol.NewInternalError(err.Error())
			}

			if cfg.logger != nil {
				cfg.logger.Debug("authenticated",
					Field{Key: "kind", Value: string(inv.Kind)},
					Field{Key: "name", Value: inv.Name},
				)
			}

			return next(ctx, inv)
		}
	}
}
