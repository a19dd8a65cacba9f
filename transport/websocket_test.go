package transport_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greg-py/mcp-forge/protocol"
	"github.com/greg-py/mcp-forge/transport"
)

func startWebSocket(t *testing.T, handler transport.Handler) *transport.WebSocket {
	t.Helper()

	ws := transport.NewWebSocket("127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ws.Serve(ctx, handler)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ws.ListenAddr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ws
}

func dialWebSocket(t *testing.T, ws *transport.WebSocket, header http.Header) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ws.ListenAddr()+"/", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketServe(t *testing.T) {
	t.Run("request and response round trip", func(t *testing.T) {
		ws := startWebSocket(t, echoHandler)
		conn := dialWebSocket(t, ws, nil)

		req := &protocol.Request{JSONRPC: "2.0", ID: []byte("1"), Method: "ping"}
		if err := conn.WriteJSON(req); err != nil {
			t.Fatalf("write: %v", err)
		}

		var resp protocol.Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(resp.ID) != "1" || resp.Error != nil {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("upgrade headers become metadata for every message", func(t *testing.T) {
		var sawAuth string
		inspect := transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			sawAuth = protocol.GetRequestMeta(ctx, "Authorization")
			return protocol.NewResponse(req.ID, "ok"), nil
		})
		ws := startWebSocket(t, inspect)

		header := http.Header{}
		header.Set("Authorization", "Bearer socket-token")
		conn := dialWebSocket(t, ws, header)

		for i := 0; i < 2; i++ {
			if err := conn.WriteJSON(&protocol.Request{JSONRPC: "2.0", ID: []byte("1"), Method: "ping"}); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp protocol.Response
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if sawAuth != "Bearer socket-token" {
				t.Fatalf("message %d saw Authorization %q", i, sawAuth)
			}
		}
	})

	t.Run("malformed message yields parse error", func(t *testing.T) {
		ws := startWebSocket(t, echoHandler)
		conn := dialWebSocket(t, ws, nil)

		if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
			t.Fatalf("write: %v", err)
		}

		var resp protocol.Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Error == nil || resp.Error.Code != -32700 {
			t.Errorf("expected parse error, got %+v", resp.Error)
		}
	})
}
