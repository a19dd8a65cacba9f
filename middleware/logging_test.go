package middleware_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/greg-py/mcp-forge/middleware"
	"github.com/greg-py/mcp-forge/protocol"
)

type logEntry struct {
	level  string
	msg    string
	fields []middleware.Field
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) log(level, msg string, fields []middleware.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *mockLogger) Info(msg string, fields ...middleware.Field)  { l.log("info", msg, fields) }
func (l *mockLogger) Error(msg string, fields ...middleware.Field) { l.log("error", msg, fields) }
func (l *mockLogger) Debug(msg string, fields ...middleware.Field) { l.log("debug", msg, fields) }
func (l *mockLogger) Warn(msg string, fields ...middleware.Field)  { l.log("warn", msg, fields) }

func (l *mockLogger) last(t *testing.T) logEntry {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		t.Fatal("expected at least one log entry")
	}
	return l.entries[len(l.entries)-1]
}

func (l *mockLogger) field(entry logEntry, key string) (any, bool) {
	for _, f := range entry.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func TestLogging(t *testing.T) {
	t.Run("logs success at info level", func(t *testing.T) {
		logger := &mockLogger{}
		handler := middleware.Logging(logger)(okHandler)

		if _, err := handler(context.Background(), testInvocation()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entry := logger.last(t)
		if entry.level != "info" {
			t.Errorf("expected info level, got %q", entry.level)
		}
		if name, ok := logger.field(entry, "name"); !ok || name != "search" {
			t.Errorf("expected name field 'search', got %v", name)
		}
		if kind, ok := logger.field(entry, "kind"); !ok || kind != "tool" {
			t.Errorf("expected kind field 'tool', got %v", kind)
		}
		if _, ok := logger.field(entry, "duration"); !ok {
			t.Error("expected duration field")
		}
	})

	t.Run("logs chain error at error level", func(t *testing.T) {
		logger := &mockLogger{}
		handler := middleware.Logging(logger)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return nil, errors.New("boom")
		})

		_, err := handler(context.Background(), testInvocation())
		if err == nil {
			t.Fatal("expected error")
		}

		entry := logger.last(t)
		if entry.level != "error" {
			t.Errorf("expected error level, got %q", entry.level)
		}
		if msg, ok := logger.field(entry, "error"); !ok || msg != "boom" {
			t.Errorf("expected error field 'boom', got %v", msg)
		}
	})

	t.Run("logs error envelope at error level", func(t *testing.T) {
		logger := &mockLogger{}
		handler := middleware.Logging(logger)(func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			return protocol.NewErrorResult("denied"), nil
		})

		if _, err := handler(context.Background(), testInvocation()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry := logger.last(t); entry.level != "error" {
			t.Errorf("expected error level for error envelope, got %q", entry.level)
		}
	})

	t.Run("includes request id when present", func(t *testing.T) {
		logger := &mockLogger{}
		handler := middleware.Chain(
			middleware.RequestID(),
			middleware.Logging(logger),
		)(okHandler)

		if _, err := handler(context.Background(), testInvocation()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := logger.field(logger.last(t), "request_id"); !ok {
			t.Error("expected request_id field")
		}
	})
}

func TestField(t *testing.T) {
	f := middleware.F("key", 42)
	if f.Key != "key" {
		t.Errorf("expected key 'key', got %q", f.Key)
	}
	if f.Value != 42 {
		t.Errorf("expected value 42, got %v", f.Value)
	}
}
