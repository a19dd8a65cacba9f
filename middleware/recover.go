package middleware

import (
	"context"
	"fmt"

	"github.com/greg-py/mcp-forge/protocol"
)

// PanicHandler is called when a panic is recovered.
type PanicHandler func(ctx context.Context, inv *protocol.Invocation, panicVal any) (*protocol.Result, error)

// Recover returns middleware that catches panics from the handler or
// downstream middleware and converts them to internal errors.
func Recover() Middleware {
	return RecoverWithHandler(defaultPanicHandler)
}

// RecoverWithHandler returns middleware that catches panics and calls the
// provided handler. This allows custom panic handling such as alerting.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (res *protocol.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					res, err = handler(ctx, inv, r)
				}
			}()
			return next(ctx, inv)
		}
	}
}

// defaultPanicHandler converts a panic value to an internal error.
func defaultPanicHandler(_ context.Context, _ *protocol.Invocation, panicVal any) (*protocol.Result, error) {
	var msg string
	switch v := panicVal.(type) {
	case error:
		msg = fmt.Sprintf("panic: %v", v)
	case string:
		msg = fmt.Sprintf("panic: %s", v)
	default:
		msg = fmt.Sprintf("panic: %v", v)
	}
	return nil, protocol.NewInternalError(msg)
}
