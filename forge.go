// Package forge provides a framework for building request-dispatch
// servers: named handlers, composable middleware and pluggable
// transports.
//
// It offers:
//   - Typed tool handlers with automatic JSON Schema generation
//   - An ordered middleware chain with policy middleware (rate limit,
//     cache, retry, timeout, metrics, auth)
//   - Resources addressed by URI templates and parameterized prompts
//   - Pluggable transports (stdio, HTTP+SSE, WebSocket)
//
// Basic usage:
//
//	d := forge.NewDispatcher(forge.Info{
//	    Name:    "my-server",
//	    Version: "1.0.0",
//	})
//
//	type SearchInput struct {
//	    Query string `json:"query" jsonschema:"required"`
//	}
//
//	d.Tool("search").
//	    Description("Search for items").
//	    Handler(func(ctx context.Context, input SearchInput) ([]string, error) {
//	        return []string{"result1", "result2"}, nil
//	    })
//
//	d.Use(forge.DefaultMiddleware(logger)...)
//
//	forge.ServeStdio(ctx, d)
package forge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/greg-py/mcp-forge/dispatch"
	"github.com/greg-py/mcp-forge/middleware"
	"github.com/greg-py/mcp-forge/protocol"
	"github.com/greg-py/mcp-forge/transport"
)

// Re-export core types for convenience

// Info contains dispatcher metadata exposed to clients.
type Info = dispatch.Info

// Capabilities declares which handler kinds the host exposes.
type Capabilities = dispatch.Capabilities

// Dispatcher is the handler registry and invocation orchestrator.
type Dispatcher = dispatch.Dispatcher

// Option configures a Dispatcher.
type Option = dispatch.Option

// Resource types
type ResourceContent = dispatch.ResourceContent
type ResourceInfo = dispatch.ResourceInfo

// Prompt types
type PromptResult = dispatch.PromptResult
type PromptMessage = dispatch.PromptMessage
type PromptArgument = dispatch.PromptArgument
type PromptInfo = dispatch.PromptInfo
type TextContent = dispatch.TextContent
type ImageContent = dispatch.ImageContent

// Middleware types
type Middleware = middleware.Middleware
type HandlerFunc = middleware.HandlerFunc
type Logger = middleware.Logger
type LogField = middleware.Field

// Result envelope types
type Result = protocol.Result
type Content = protocol.Content

// Invocation is the per-dispatch context middleware operates on.
type Invocation = protocol.Invocation

// Handler kinds.
const (
	KindTool     = protocol.KindTool
	KindResource = protocol.KindResource
	KindPrompt   = protocol.KindPrompt
)

// Rate limiting re-exports.
type RateLimitOption = middleware.RateLimitOption

var (
	RateLimit            = middleware.RateLimit
	RateLimitTokenBucket = middleware.RateLimitTokenBucket
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitGlobal  = middleware.WithRateLimitGlobal
	WithRateLimitLogger  = middleware.WithRateLimitLogger
)

// Caching re-exports.
type CacheOption = middleware.CacheOption

var (
	Cache                   = middleware.Cache
	WithCacheKinds          = middleware.WithCacheKinds
	WithCacheKeyFunc        = middleware.WithCacheKeyFunc
	WithCacheErrorEnvelopes = middleware.WithCacheErrorEnvelopes
)

// Retry re-exports.
type BackoffPolicy = middleware.BackoffPolicy
type RetryOption = middleware.RetryOption

var (
	Retry               = middleware.Retry
	WithRetryBackoff    = middleware.WithRetryBackoff
	WithRetryClassifier = middleware.WithRetryClassifier
)

// Metrics re-exports.
type MetricsAggregator = middleware.MetricsAggregator
type AggregatedMetric = middleware.AggregatedMetric
type Sample = middleware.Sample

var (
	Metrics               = middleware.Metrics
	NewMetricsAggregator  = middleware.NewMetricsAggregator
	WithMetricsAggregator = middleware.WithMetricsAggregator
)

// Auth re-exports.
type TokenValidator = middleware.TokenValidator
type TokenExtractor = middleware.TokenExtractor

var (
	AuthGate     = middleware.AuthGate
	BearerToken  = middleware.BearerToken
	HeaderToken  = middleware.HeaderToken
	StaticTokens = middleware.StaticTokens
)

// SizeLimit re-exports.
type SizeLimitOption = middleware.SizeLimitOption

var (
	SizeLimit           = middleware.SizeLimit
	WithSizeLimitLogger = middleware.WithSizeLimitLogger
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// HTTPOption configures the HTTP transport.
type HTTPOption = transport.HTTPOption

// WebSocketOption configures the WebSocket transport.
type WebSocketOption = transport.WebSocketOption

// NewDispatcher creates a new dispatcher with the given info and options.
func NewDispatcher(info Info, opts ...Option) *Dispatcher {
	return dispatch.New(info, opts...)
}

// ServeStdio runs the dispatcher behind the stdio transport.
// This blocks until the context is canceled or an error occurs.
func ServeStdio(ctx context.Context, d *Dispatcher) error {
	t := transport.NewStdio()
	return t.Serve(ctx, newRequestHandler(d))
}

// ServeHTTP runs the dispatcher behind the HTTP transport with SSE
// support. This blocks until the context is canceled or an error occurs.
func ServeHTTP(ctx context.Context, d *Dispatcher, addr string, opts ...HTTPOption) error {
	t := transport.NewHTTP(addr, opts...)
	return t.Serve(ctx, newRequestHandler(d))
}

// ServeWebSocket runs the dispatcher behind the WebSocket transport.
// This blocks until the context is canceled or an error occurs.
func ServeWebSocket(ctx context.Context, d *Dispatcher, addr string, opts ...WebSocketOption) error {
	t := transport.NewWebSocket(addr, opts...)
	return t.Serve(ctx, newRequestHandler(d))
}

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return transport.WithReadTimeout(d)
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return transport.WithWriteTimeout(d)
}

// Middleware re-exports

// Chain composes multiple middleware into a single middleware.
func Chain(middlewares ...Middleware) Middleware {
	return middleware.Chain(middlewares...)
}

// Recover returns middleware that catches panics and converts them to internal errors.
func Recover() Middleware {
	return middleware.Recover()
}

// TimeoutOption configures the timeout middleware.
type TimeoutOption = middleware.TimeoutOption

// WithTimeoutError makes deadlines surface as CodeTimeout errors instead
// of the error envelope.
var WithTimeoutError = middleware.WithTimeoutError

// Timeout returns middleware that races the downstream chain against a deadline.
func Timeout(d time.Duration, opts ...TimeoutOption) Middleware {
	return middleware.Timeout(d, opts...)
}

// RequestID returns middleware that injects a unique request ID into the context.
func RequestID() Middleware {
	return middleware.RequestID()
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	return middleware.RequestIDFromContext(ctx)
}

// Logging returns middleware that logs invocation details.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// DefaultMiddleware returns the recommended production middleware stack.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// DefaultMiddlewareWithTimeout returns the default stack with a timeout middleware.
func DefaultMiddlewareWithTimeout(logger Logger, timeout time.Duration) []Middleware {
	return middleware.DefaultStackWithTimeout(logger, timeout)
}

// LogF creates a new log field with the given key and value.
func LogF(key string, value any) LogField {
	return middleware.F(key, value)
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface.
var NewSlogLogger = middleware.NewSlogLogger

// NopLogger is a logger that discards all log entries.
type NopLogger = middleware.NopLogger

// NewHandler returns a transport.Handler that serves the dispatcher over
// JSON-RPC. Useful for driving a dispatcher without a real transport,
// e.g. in tests or embedded setups.
func NewHandler(d *Dispatcher) transport.Handler {
	return newRequestHandler(d)
}

// requestHandler adapts a Dispatcher to transport.Handler, translating
// JSON-RPC methods into dispatches.
type requestHandler struct {
	d *Dispatcher
}

func newRequestHandler(d *Dispatcher) *requestHandler {
	return &requestHandler{d: d}
}

func (h *requestHandler) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return h.handleInitialize(req)
	case protocol.MethodToolsList:
		return h.handleToolsList(req)
	case protocol.MethodToolsCall:
		return h.handleToolsCall(ctx, req)
	case protocol.MethodResourcesList:
		return h.handleResourcesList(req)
	case protocol.MethodResourcesRead:
		return h.handleResourcesRead(ctx, req)
	case protocol.MethodPromptsList:
		return h.handlePromptsList(req)
	case protocol.MethodPromptsGet:
		return h.handlePromptsGet(ctx, req)
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	default:
		return nil, protocol.NewMethodNotFound(req.Method)
	}
}

func (h *requestHandler) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	manifest := h.d.Manifest()

	capabilities := make(map[string]any)
	if manifest.Capabilities.Tools {
		capabilities["tools"] = map[string]any{}
	}
	if manifest.Capabilities.Resources {
		capabilities["resources"] = map[string]any{}
	}
	if manifest.Capabilities.Prompts {
		capabilities["prompts"] = map[string]any{}
	}

	result := map[string]any{
		"protocolVersion": manifest.ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    manifest.Name,
			"version": manifest.Version,
		},
		"capabilities": capabilities,
	}

	return protocol.NewResponse(req.ID, result), nil
}

func (h *requestHandler) handleToolsList(req *protocol.Request) (*protocol.Response, error) {
	tools := h.d.Tools()

	toolList := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		toolList = append(toolList, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}

	return protocol.NewResponse(req.ID, map[string]any{"tools": toolList}), nil
}

func (h *requestHandler) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	res, err := h.d.Dispatch(ctx, protocol.KindTool, params.Name, params.Arguments, protocol.RequestMetaFromContext(ctx))
	if err != nil {
		return nil, err
	}

	return protocol.NewResponse(req.ID, res), nil
}

func (h *requestHandler) handleResourcesList(req *protocol.Request) (*protocol.Response, error) {
	resources := h.d.Resources()

	resourceList := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		item := map[string]any{
			"uri":  r.URITemplate,
			"name": r.Name,
		}
		if r.Description != "" {
			item["description"] = r.Description
		}
		if r.MimeType != "" {
			item["mimeType"] = r.MimeType
		}
		resourceList = append(resourceList, item)
	}

	return protocol.NewResponse(req.ID, map[string]any{"resources": resourceList}), nil
}

func (h *requestHandler) handleResourcesRead(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	res, err := h.d.Dispatch(ctx, protocol.KindResource, params.URI, nil, protocol.RequestMetaFromContext(ctx))
	if err != nil {
		return nil, err
	}

	content, ok := res.Structured.(*dispatch.ResourceContent)
	if !ok {
		// Short-circuited by middleware; surface the envelope directly.
		return protocol.NewResponse(req.ID, res), nil
	}

	item := map[string]any{
		"uri":      content.URI,
		"mimeType": content.MimeType,
		"text":     content.Text,
	}
	if content.Blob != "" {
		item["blob"] = content.Blob
	}

	return protocol.NewResponse(req.ID, map[string]any{"contents": []map[string]any{item}}), nil
}

func (h *requestHandler) handlePromptsList(req *protocol.Request) (*protocol.Response, error) {
	prompts := h.d.Prompts()

	promptList := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		item := map[string]any{
			"name": p.Name,
		}
		if p.Description != "" {
			item["description"] = p.Description
		}
		if len(p.Arguments) > 0 {
			args := make([]map[string]any, 0, len(p.Arguments))
			for _, arg := range p.Arguments {
				argItem := map[string]any{
					"name":     arg.Name,
					"required": arg.Required,
				}
				if arg.Description != "" {
					argItem["description"] = arg.Description
				}
				args = append(args, argItem)
			}
			item["arguments"] = args
		}
		promptList = append(promptList, item)
	}

	return protocol.NewResponse(req.ID, map[string]any{"prompts": promptList}), nil
}

func (h *requestHandler) handlePromptsGet(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	res, err := h.d.Dispatch(ctx, protocol.KindPrompt, params.Name, params.Arguments, protocol.RequestMetaFromContext(ctx))
	if err != nil {
		return nil, err
	}

	result, ok := res.Structured.(*dispatch.PromptResult)
	if !ok {
		return protocol.NewResponse(req.ID, res), nil
	}

	response := map[string]any{
		"messages": result.Messages,
	}
	if result.Description != "" {
		response["description"] = result.Description
	}

	return protocol.NewResponse(req.ID, response), nil
}
