package middleware

import (
	"context"

	"github.com/pkg/errors"

	"ipc-link/message"
	"ipc-link/stream"
)

// Recovery converts a panicking handler into an error, so one broken
// service routine reaches the dispatcher's error report instead of
// killing the accept loop.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic in handler for id %d: %v", id, r)
				}
			}()
			return next(ctx, id, in, out, conn)
		}
	}
}
