package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ipc-link/message"
	"ipc-link/stream"
)

func noopHandler(trace *[]string, name string) Handler {
	return func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
		*trace = append(*trace, name)
		return nil
	}
}

func tracing(trace *[]string, name string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
			*trace = append(*trace, name+".before")
			err := next(ctx, id, in, out, conn)
			*trace = append(*trace, name+".after")
			return err
		}
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	h := Chain(tracing(&trace, "A"), tracing(&trace, "B"))(noopHandler(&trace, "handler"))

	require.NoError(t, h(context.Background(), 1, nil, nil, nil))
	require.Equal(t, []string{"A.before", "B.before", "handler", "B.after", "A.after"}, trace)
}

func TestLoggingPassesThrough(t *testing.T) {
	var trace []string
	h := Logging(zap.NewNop())(noopHandler(&trace, "handler"))

	out := message.NewOut()
	require.NoError(t, h(context.Background(), 7, message.NewIn(), out, nil))
	require.Equal(t, []string{"handler"}, trace)
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	var trace []string
	// One call per hour, burst of 2: the third call must be rejected.
	h := RateLimit(1.0/3600, 2)(noopHandler(&trace, "handler"))

	require.NoError(t, h(context.Background(), 1, nil, nil, nil))
	require.NoError(t, h(context.Background(), 2, nil, nil, nil))
	err := h(context.Background(), 3, nil, nil, nil)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Len(t, trace, 2)
}

func TestRecoveryConvertsPanic(t *testing.T) {
	h := Recovery()(func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
		panic("handler exploded")
	})

	err := h(context.Background(), 9, nil, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "handler exploded")
}
