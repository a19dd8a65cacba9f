package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greg-py/mcp-forge/protocol"
)

// WebSocket implements the transport over WebSocket connections. The
// headers of the upgrade request become the protocol metadata for every
// message on the connection.
type WebSocket struct {
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu         sync.RWMutex
	listenAddr string
	clients    map[*wsClient]struct{}
}

// wsClient represents a single WebSocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithWebSocketReadTimeout sets the read timeout for WebSocket messages.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for WebSocket messages.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// NewWebSocket creates a new WebSocket transport.
func NewWebSocket(addr string, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins by default
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		clients:      make(map[*wsClient]struct{}),
	}

	for _, opt := range opts {
		opt(ws)
	}

	return ws
}

// Addr returns the transport address.
func (ws *WebSocket) Addr() string {
	return ws.addr
}

// ListenAddr returns the actual address the server is listening on.
func (ws *WebSocket) ListenAddr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listenAddr
}

// Serve starts the WebSocket server.
func (ws *WebSocket) Serve(ctx context.Context, handler Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws.handleConnection(ctx, w, r, handler)
	})

	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	ws.mu.Lock()
	ws.listenAddr = listener.Addr().String()
	ws.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  ws.readTimeout,
		WriteTimeout: ws.writeTimeout,
	}
	ws.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := ws.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.closeAllClients()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (ws *WebSocket) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, handler Handler) {
	// Capture metadata before the upgrade; it applies to every message
	// on this connection.
	meta := requestMeta(r)

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn}

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		_ = conn.Close()
	}()

	sender := &wsNotificationSender{client: client}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.readTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Close errors are normal (client disconnected).
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(message, &req); err != nil {
			resp := protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
			_ = client.writeJSON(resp)
			continue
		}

		reqCtx := ContextWithNotificationSender(ctx, sender)
		reqCtx = protocol.ContextWithRequestMeta(reqCtx, meta)

		resp, err := handler.HandleRequest(reqCtx, &req)

		// Notifications get no response.
		if req.IsNotification() {
			continue
		}

		if err != nil {
			var perr *protocol.Error
			if errors.As(err, &perr) {
				resp = protocol.NewErrorResponse(req.ID, perr)
			} else {
				resp = protocol.NewErrorResponse(req.ID, protocol.NewInternalError(err.Error()))
			}
		}

		if resp != nil {
			_ = client.writeJSON(resp)
		}
	}
}

func (ws *WebSocket) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for client := range ws.clients {
		client.close()
	}
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// wsNotificationSender sends notifications to a WebSocket client.
type wsNotificationSender struct {
	client *wsClient
}

func (s *wsNotificationSender) SendNotification(method string, params any) error {
	paramsData, err := json.Marshal(params)
	if err != nil {
		return err
	}

	notif := Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsData,
	}

	return s.client.writeJSON(notif)
}
