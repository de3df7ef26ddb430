package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ipc-link/message"
	"ipc-link/stream"
)

// Logging logs every dispatched call with its function id, duration and
// outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
			start := time.Now()
			err := next(ctx, id, in, out, conn)
			if err != nil {
				logger.Warn("call failed",
					zap.Uint32("id", id),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
			} else {
				logger.Info("call served",
					zap.Uint32("id", id),
					zap.Duration("duration", time.Since(start)),
					zap.Int("reply_bytes", out.Len()))
			}
			return err
		}
	}
}
