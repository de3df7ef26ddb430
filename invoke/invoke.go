// Package invoke turns ordinary callables, named by numeric function
// ids, into request/response exchanges over a point-to-point socket.
//
// FunctionN adapters marshal one exchange for a callable of arity N:
// they extract the declared argument types from the incoming message,
// run the callable, and pack its result into the outgoing message. They
// never touch the socket.
//
// Caller is the other direction: it packs a request for a remote
// function id and sends it. CallByLink and CallByName then pump replies
// until the final result arrives — servicing nested callback requests
// from the peer along the way; CallByChannel, used for server-to-client
// callbacks, reads exactly one bare reply. Together they make callbacks
// transparent and arbitrarily deep over a single connection, with strict
// request/reply turn-taking.
package invoke

import (
	stderrors "errors"

	"github.com/pkg/errors"

	"ipc-link/message"
	"ipc-link/wire"
)

// ErrUnknownFunction reports a function id no dispatcher recognized; the
// exchange it arrived on is a protocol fault.
var ErrUnknownFunction = stderrors.New("unknown function id")

// Void marks a callable without a result. A Void return appends nothing
// to the reply and extracts nothing from it.
type Void struct{}

// Value constrains the types that cross the wire. Composite types are
// layered by the caller over these primitives.
type Value interface {
	uint32 | int32 | uint64 | int64 | float64 | byte | string | []byte | message.RemotePtr | Void
}

// DispatchFunc routes one inbound function id to a local callable,
// normally by driving a FunctionN adapter with EmitDone false over
// in/out. Returning handled == false means the id is unknown.
type DispatchFunc func(id uint32, in *message.In, out *message.Out) (handled bool, err error)

// appendValue appends one runtime-typed argument. The pump uses it for
// request arguments, which arrive as a heterogeneous list.
func appendValue(out *message.Out, v any) error {
	switch x := v.(type) {
	case uint32:
		return out.PutU32(x)
	case int32:
		return out.PutI32(x)
	case uint64:
		return out.PutU64(x)
	case int64:
		return out.PutI64(x)
	case float64:
		return out.PutF64(x)
	case byte:
		return out.PutChar(x)
	case string:
		return out.PutString(x)
	case []byte:
		return out.PutBlob(x)
	case message.RemotePtr:
		return out.PutRemotePtr(x)
	case Void:
		return nil
	default:
		return errors.Wrapf(wire.ErrTypeMismatch, "append: unsupported argument type %T", v)
	}
}

// extractValue extracts one statically-typed value.
func extractValue[T Value](in *message.In) (T, error) {
	var v T
	var err error
	switch p := any(&v).(type) {
	case *uint32:
		*p, err = in.U32()
	case *int32:
		*p, err = in.I32()
	case *uint64:
		*p, err = in.U64()
	case *int64:
		*p, err = in.I64()
	case *float64:
		*p, err = in.F64()
	case *byte:
		*p, err = in.Char()
	case *string:
		*p, err = in.String()
	case *[]byte:
		*p, err = in.Blob()
	case *message.RemotePtr:
		*p, err = in.RemotePtr()
	case *Void:
		// Nothing on the wire.
	}
	return v, err
}

// finish packs the reply: the done tag first when this adapter serves a
// server-side function, then the result unless it is Void. The outgoing
// message is cleared here, after the callable ran, so a callable that
// issued nested calls through the same buffers leaves no residue in the
// reply.
func finish(out *message.Out, emitDone bool, r any) error {
	out.Clear()
	if emitDone {
		if err := out.PutU32(wire.DoneTag); err != nil {
			return err
		}
	}
	return appendValue(out, r)
}

// Function0 binds a niladic callable to one message exchange.
//
// EmitDone selects server-side use: the reply is prefixed with
// wire.DoneTag so the peer's pump recognizes it as the final result.
// Callbacks invoked on the client side leave it false.
type Function0[R Value] struct {
	EmitDone bool
}

func (fi Function0[R]) Invoke(in *message.In, out *message.Out, f func() (R, error)) error {
	r, err := f()
	if err != nil {
		return err
	}
	return finish(out, fi.EmitDone, r)
}

// Function1 binds a one-argument callable to one message exchange.
type Function1[A1, R Value] struct {
	EmitDone bool
}

func (fi Function1[A1, R]) Invoke(in *message.In, out *message.Out, f func(A1) (R, error)) error {
	a1, err := extractValue[A1](in)
	if err != nil {
		return err
	}
	r, err := f(a1)
	if err != nil {
		return err
	}
	return finish(out, fi.EmitDone, r)
}

// Function2 binds a two-argument callable to one message exchange.
type Function2[A1, A2, R Value] struct {
	EmitDone bool
}

func (fi Function2[A1, A2, R]) Invoke(in *message.In, out *message.Out, f func(A1, A2) (R, error)) error {
	a1, err := extractValue[A1](in)
	if err != nil {
		return err
	}
	a2, err := extractValue[A2](in)
	if err != nil {
		return err
	}
	r, err := f(a1, a2)
	if err != nil {
		return err
	}
	return finish(out, fi.EmitDone, r)
}

// Function3 binds a three-argument callable to one message exchange.
type Function3[A1, A2, A3, R Value] struct {
	EmitDone bool
}

func (fi Function3[A1, A2, A3, R]) Invoke(in *message.In, out *message.Out, f func(A1, A2, A3) (R, error)) error {
	a1, err := extractValue[A1](in)
	if err != nil {
		return err
	}
	a2, err := extractValue[A2](in)
	if err != nil {
		return err
	}
	a3, err := extractValue[A3](in)
	if err != nil {
		return err
	}
	r, err := f(a1, a2, a3)
	if err != nil {
		return err
	}
	return finish(out, fi.EmitDone, r)
}

// Function4 binds a four-argument callable to one message exchange.
type Function4[A1, A2, A3, A4, R Value] struct {
	EmitDone bool
}

func (fi Function4[A1, A2, A3, A4, R]) Invoke(in *message.In, out *message.Out, f func(A1, A2, A3, A4) (R, error)) error {
	a1, err := extractValue[A1](in)
	if err != nil {
		return err
	}
	a2, err := extractValue[A2](in)
	if err != nil {
		return err
	}
	a3, err := extractValue[A3](in)
	if err != nil {
		return err
	}
	a4, err := extractValue[A4](in)
	if err != nil {
		return err
	}
	r, err := f(a1, a2, a3, a4)
	if err != nil {
		return err
	}
	return finish(out, fi.EmitDone, r)
}
