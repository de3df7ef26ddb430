package middleware

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"ipc-link/message"
	"ipc-link/stream"
)

// ErrRateLimited reports a call rejected by the RateLimit interceptor.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit rejects calls beyond r per second with bursts of up to
// `burst`, using a token bucket shared across connections.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
			if !limiter.Allow() {
				return errors.Wrapf(ErrRateLimited, "call id %d", id)
			}
			return next(ctx, id, in, out, conn)
		}
	}
}
