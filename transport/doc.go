// Package transport provides the communication layer for dispatch
// servers.
//
// # Stdio Transport
//
// The stdio transport communicates via stdin/stdout, suitable for local
// tools and CLI integrations. It attaches no request metadata, so
// metadata-aware middleware treats its invocations as trusted local
// calls:
//
//	t := transport.NewStdio()
//	err := t.Serve(ctx, handler)
//
// # HTTP Transport
//
// The HTTP transport provides an HTTP server with Server-Sent Events
// (SSE) support for server-to-client messages:
//
//	t := transport.NewHTTP(":8080",
//	    transport.WithReadTimeout(30*time.Second),
//	    transport.WithDefaultCORS(),
//	)
//	err := t.Serve(ctx, handler)
//
// Endpoints:
//   - POST /rpc - Handle JSON-RPC requests
//   - GET /rpc/sse - Establish SSE connection
//   - GET /health - Health check endpoint
//
// Request headers are attached to the context as protocol.RequestMeta
// so the auth gate and custom rate-limit key functions can read them.
//
// # WebSocket Transport
//
// The WebSocket transport serves bidirectional connections; the upgrade
// request's headers become the metadata for every message on the
// connection:
//
//	t := transport.NewWebSocket(":8080")
//	err := t.Serve(ctx, handler)
//
// # Handler Interface
//
// All transports expect a Handler that processes requests:
//
//	type Handler interface {
//	    HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
//	}
//
// Most users should use the root package's convenience functions
// (ServeStdio, ServeHTTP, ServeWebSocket) instead of this package
// directly.
package transport
