// Package middleware provides dispatch interceptors for the RPC server.
//
// Interceptors wrap the dispatcher's invoke step in an onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// so A sees the request first and the response last. The chain is built
// once at server startup, not per request.
package middleware

import (
	"context"

	"ipc-link/message"
	"ipc-link/stream"
)

// Handler processes one dispatched request: the consumed function id,
// the incoming message positioned at the first argument, the outgoing
// reply buffer, and the connection (for nested callbacks).
type Handler func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(next Handler) Handler

// Chain composes middlewares into one. They are applied in the order
// given: the first middleware is the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
