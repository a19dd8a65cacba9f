package middleware

import (
	"context"

	"github.com/greg-py/mcp-forge/protocol"
)

// HandlerFunc is the signature for invocation handlers. The terminal
// handler of a chain performs the actual tool, resource or prompt call.
type HandlerFunc func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error)

// Middleware wraps a handler with additional behavior. A middleware
// proceeds downstream by calling the handler it wraps; returning without
// calling it short-circuits the rest of the chain.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single middleware.
// Middleware execute in the order given on the way in and in reverse
// order on the way out, so Chain(m1, m2, m3) results in m1 wrapping m2
// wrapping m3 wrapping the terminal handler.
func Chain(middlewares ...Middleware) Middleware {
	return func(terminal HandlerFunc) HandlerFunc {
		// Apply in reverse so execution follows registration order.
		for i := len(middlewares) - 1; i >= 0; i-- {
			terminal = middlewares[i](terminal)
		}
		return terminal
	}
}

// MiddlewareChain provides a fluent API for building middleware chains.
// It is append-only; the composed order always equals the append order.
type MiddlewareChain struct {
	middlewares []Middleware
}

// Use creates a new middleware chain starting with the given middleware.
func Use(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Append adds middleware to the chain and returns the updated chain.
func (c *MiddlewareChain) Append(middlewares ...Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, middlewares...)
	return c
}

// Then applies the middleware chain to a terminal handler and returns the
// wrapped handler.
func (c *MiddlewareChain) Then(terminal HandlerFunc) HandlerFunc {
	return Chain(c.middlewares...)(terminal)
}
