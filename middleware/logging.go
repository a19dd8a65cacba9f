package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/greg-py/mcp-forge/protocol"
)

// Logger is the interface for structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logging returns middleware that logs invocation details.
// Successful invocations are logged at info level; chain errors and
// error envelopes at error level.
func Logging(logger Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			start := time.Now()

			res, err := next(ctx, inv)

			fields := []Field{
				F("kind", string(inv.Kind)),
				F("name", inv.Name),
				F("duration", time.Since(start)),
			}
			if requestID := RequestIDFromContext(ctx); requestID != "" {
				fields = append(fields, F("request_id", requestID))
			}

			switch {
			case err != nil:
				fields = append(fields, F("error", err.Error()))
				logger.Error("invocation failed", fields...)
			case res != nil && res.IsError:
				logger.Error("invocation returned error envelope", fields...)
			default:
				logger.Info("invocation completed", fields...)
			}

			return res, err
		}
	}
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, slogArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, slogArgs(fields)...) }
func (s *slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, slogArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, slogArgs(fields)...) }

func slogArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

// NopLogger is a logger that discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
