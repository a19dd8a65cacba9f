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

	"github.com/greg-py/mcp-forge/protocol"
)

// HTTP implements the transport over HTTP with SSE support for
// server-to-client messages. Request headers are attached to the context
// as protocol.RequestMeta so metadata-aware middleware (auth, custom
// rate-limit keys) can read them.
type HTTP struct {
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	corsConfig      *CORSConfig
	shutdownTimeout time.Duration
	drainDelay      time.Duration

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
	shutdown   *ShutdownManager

	// SSE clients
	sseClients   map[string]chan []byte
	sseClientsMu sync.RWMutex
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:            addr,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		sseClients:      make(map[string]chan []byte),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Serve starts the HTTP server and handles requests until ctx is
// canceled. Shutdown drains in-flight requests up to the configured
// shutdown timeout.
func (h *HTTP) Serve(ctx context.Context, handler Handler) error {
	httpHandler := h.createHandler(handler)

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:    h.shutdownTimeout,
		DrainDelay: h.drainDelay,
	})
	h.server = &http.Server{
		Handler:      httpHandler,
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout+h.drainDelay)
		defer cancel()
		_ = h.shutdown.Shutdown(drainCtx)
		if err := h.server.Shutdown(drainCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// createHandler creates the HTTP handler for JSON-RPC requests.
func (h *HTTP) createHandler(handler Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// SSE endpoint for server-to-client messages
	mux.HandleFunc("/rpc/sse", func(w http.ResponseWriter, r *http.Request) {
		h.handleSSE(w, r)
	})

	// Main JSON-RPC endpoint
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		h.handleRPC(w, r, handler)
	})

	if h.corsConfig != nil {
		return CORSHandler(*h.corsConfig, mux)
	}
	return mux
}

// requestMeta converts HTTP request headers into protocol metadata,
// keeping the first value of each header under its canonical name.
func requestMeta(r *http.Request) protocol.RequestMeta {
	meta := make(protocol.RequestMeta, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			meta[name] = values[0]
		}
	}
	return meta
}

// handleRPC handles JSON-RPC requests over HTTP.
func (h *HTTP) handleRPC(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if sm := h.shutdownManager(); sm != nil {
		if !sm.TrackRequest() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		defer sm.CompleteRequest()
	}

	w.Header().Set("Content-Type", "application/json")

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp := protocol.NewErrorResponse(nil, protocol.NewParseError("Invalid JSON"))
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	ctx := protocol.ContextWithRequestMeta(r.Context(), requestMeta(r))

	resp, err := handler.HandleRequest(ctx, &req)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			resp = protocol.NewErrorResponse(req.ID, perr)
		} else {
			resp = protocol.NewErrorResponse(req.ID, protocol.NewInternalError(err.Error()))
		}
	}

	if resp != nil {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (h *HTTP) shutdownManager() *ShutdownManager {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shutdown
}

// handleSSE handles Server-Sent Events connections.
func (h *HTTP) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientID := fmt.Sprintf("%d", time.Now().UnixNano())
	messageCh := make(chan []byte, 10)

	h.sseClientsMu.Lock()
	h.sseClients[clientID] = messageCh
	h.sseClientsMu.Unlock()

	defer func() {
		h.sseClientsMu.Lock()
		delete(h.sseClients, clientID)
		close(messageCh)
		h.sseClientsMu.Unlock()
	}()

	fmt.Fprintf(w, "event: connected\ndata: {\"clientId\":\"%s\"}\n\n", clientID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messageCh:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast sends a message to all connected SSE clients.
func (h *HTTP) Broadcast(data []byte) {
	h.sseClientsMu.RLock()
	defer h.sseClientsMu.RUnlock()

	for _, ch := range h.sseClients {
		select {
		case ch <- data:
		default:
			// Skip if channel is full
		}
	}
}

// SendTo sends a message to a specific SSE client.
func (h *HTTP) SendTo(clientID string, data []byte) bool {
	h.sseClientsMu.RLock()
	defer h.sseClientsMu.RUnlock()

	if ch, ok := h.sseClients[clientID]; ok {
		select {
		case ch <- data:
			return true
		default:
			return false
		}
	}
	return false
}
