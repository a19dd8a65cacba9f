package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/greg-py/mcp-forge/protocol"
	"github.com/greg-py/mcp-forge/transport"
)

// echoHandler responds to every request with its method name.
var echoHandler = transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, map[string]string{"method": req.Method}), nil
})

func serveLines(t *testing.T, handler transport.Handler, input string) []*protocol.Response {
	t.Helper()

	var out bytes.Buffer
	s := transport.NewStdio(
		transport.WithStdin(strings.NewReader(input)),
		transport.WithStdout(&out),
	)

	if err := s.Serve(context.Background(), handler); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var responses []*protocol.Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, &resp)
	}
	return responses
}

func TestStdioServe(t *testing.T) {
	t.Run("one response per request line", func(t *testing.T) {
		responses := serveLines(t, echoHandler,
			`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"+
				`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`+"\n")

		if len(responses) != 2 {
			t.Fatalf("expected 2 responses, got %d", len(responses))
		}
		if string(responses[0].ID) != "1" || string(responses[1].ID) != "2" {
			t.Errorf("response IDs = %s, %s", responses[0].ID, responses[1].ID)
		}
	})

	t.Run("returns nil on EOF", func(t *testing.T) {
		var out bytes.Buffer
		s := transport.NewStdio(
			transport.WithStdin(strings.NewReader("")),
			transport.WithStdout(&out),
		)
		if err := s.Serve(context.Background(), echoHandler); err != nil {
			t.Errorf("expected nil on EOF, got %v", err)
		}
	})

	t.Run("malformed line yields parse error", func(t *testing.T) {
		responses := serveLines(t, echoHandler, "{not json\n")

		if len(responses) != 1 {
			t.Fatalf("expected 1 response, got %d", len(responses))
		}
		if responses[0].Error == nil || responses[0].Error.Code != -32700 {
			t.Errorf("expected parse error, got %+v", responses[0].Error)
		}
	})

	t.Run("notifications get no response", func(t *testing.T) {
		responses := serveLines(t, echoHandler,
			`{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n")
		if len(responses) != 0 {
			t.Errorf("expected no responses, got %d", len(responses))
		}
	})

	t.Run("handler errors mapped to error responses", func(t *testing.T) {
		failing := transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if req.Method == "known" {
				return nil, protocol.NewNotFound("missing")
			}
			return nil, errors.New("unexpected failure")
		})

		responses := serveLines(t, failing,
			`{"jsonrpc":"2.0","id":1,"method":"known"}`+"\n"+
				`{"jsonrpc":"2.0","id":2,"method":"other"}`+"\n")

		if len(responses) != 2 {
			t.Fatalf("expected 2 responses, got %d", len(responses))
		}
		if responses[0].Error.Code != -32001 {
			t.Errorf("expected structured code preserved, got %d", responses[0].Error.Code)
		}
		if responses[1].Error.Code != -32603 {
			t.Errorf("expected internal error for plain failures, got %d", responses[1].Error.Code)
		}
	})

	t.Run("no request metadata attached", func(t *testing.T) {
		var sawMeta protocol.RequestMeta
		inspect := transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			sawMeta = protocol.RequestMetaFromContext(ctx)
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		serveLines(t, inspect, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")

		if sawMeta != nil {
			t.Errorf("local transport must not attach metadata, got %v", sawMeta)
		}
	})

	t.Run("notification sender reachable from context", func(t *testing.T) {
		var sender transport.NotificationSender
		inspect := transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			sender = transport.NotificationSenderFromContext(ctx)
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		serveLines(t, inspect, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")

		if sender == nil {
			t.Error("expected notification sender in context")
		}
	})
}

func TestStdioSendNotification(t *testing.T) {
	var out bytes.Buffer
	s := transport.NewStdio(
		transport.WithStdin(strings.NewReader("")),
		transport.WithStdout(&out),
	)

	if err := s.SendNotification("progress", map[string]int{"percent": 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var notif transport.Notification
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &notif); err != nil {
		t.Fatalf("invalid notification %q: %v", out.String(), err)
	}
	if notif.JSONRPC != "2.0" || notif.Method != "progress" {
		t.Errorf("unexpected notification %+v", notif)
	}
	if string(notif.Params) != `{"percent":50}` {
		t.Errorf("unexpected params %s", notif.Params)
	}
}
