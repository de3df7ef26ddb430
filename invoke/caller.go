package invoke

import (
	"github.com/pkg/errors"

	"ipc-link/loadbalance"
	"ipc-link/message"
	"ipc-link/registry"
	"ipc-link/stream"
	"ipc-link/wire"
)

// Caller issues calls to the remote function named by ID, declared to
// return R. Arguments are supplied at call time and must be Value types.
type Caller[R Value] struct {
	ID uint32
}

// CallByLink opens a fresh connection to the endpoint, performs the
// call, and closes it.
//
// The call runs the dispatch pump: while waiting for the final result
// (a reply prefixed with wire.DoneTag) it services nested callback
// requests from the peer by routing them through dispatch and sending
// each callback's reply back on the same connection. A dispatch that
// does not recognize an id aborts the call with ErrUnknownFunction.
func (c Caller[R]) CallByLink(ep stream.Endpoint, dispatch DispatchFunc, pred stream.Predicate, args ...any) (R, error) {
	var zero R
	conn, err := stream.Dial(ep)
	if err != nil {
		return zero, err
	}
	defer conn.Close()
	return c.pump(conn, message.NewIn(), message.NewOut(), dispatch, pred, args)
}

// CallByName resolves the service in the registry, picks one endpoint
// through the balancer, and performs the call as CallByLink.
func (c Caller[R]) CallByName(reg registry.Registry, bal loadbalance.Balancer, service string, dispatch DispatchFunc, pred stream.Predicate, args ...any) (R, error) {
	var zero R
	instances, err := reg.Discover(service)
	if err != nil {
		return zero, err
	}
	inst, err := bal.Pick(instances)
	if err != nil {
		return zero, err
	}
	return c.CallByLink(inst.Endpoint, dispatch, pred, args...)
}

// CallByChannel performs the call on an already-open connection,
// reusing the caller-provided message buffers so that allocations stay
// bounded across nested callbacks.
//
// This is the server-to-client direction: the peer answers with a bare
// reply carrying only the result (callbacks never emit the done tag),
// so exactly one reply is read and decoded as R.
func (c Caller[R]) CallByChannel(conn *stream.Conn, in *message.In, out *message.Out, pred stream.Predicate, args ...any) (R, error) {
	var zero R
	if err := c.send(conn, out, pred, args); err != nil {
		return zero, err
	}
	got, err := conn.ReadMessage(in, pred)
	if err != nil {
		return zero, err
	}
	if !got {
		return zero, errors.Wrap(wire.ErrUserStop, "call: read interrupted")
	}
	return extractValue[R](in)
}

// send packs [ID, args...] into out and writes it.
func (c Caller[R]) send(conn *stream.Conn, out *message.Out, pred stream.Predicate, args []any) error {
	out.Clear()
	if err := out.PutU32(c.ID); err != nil {
		return err
	}
	for _, a := range args {
		if err := appendValue(out, a); err != nil {
			return err
		}
	}
	sent, err := conn.WriteMessage(out, pred)
	if err != nil {
		return err
	}
	if !sent {
		return errors.Wrap(wire.ErrUserStop, "call: write interrupted")
	}
	return nil
}

// pump is the dispatch loop behind CallByLink: send the request, then
// alternate between decoding the final done-tagged result and servicing
// nested callback requests, until the result arrives.
func (c Caller[R]) pump(conn *stream.Conn, in *message.In, out *message.Out, dispatch DispatchFunc, pred stream.Predicate, args []any) (R, error) {
	var zero R
	if err := c.send(conn, out, pred, args); err != nil {
		return zero, err
	}
	for {
		got, err := conn.ReadMessage(in, pred)
		if err != nil {
			return zero, err
		}
		if !got {
			return zero, errors.Wrap(wire.ErrUserStop, "call: read interrupted")
		}
		id, err := in.PeekID()
		if err != nil {
			return zero, err
		}
		if id == wire.DoneTag {
			if _, err := in.U32(); err != nil { // consume the tag
				return zero, err
			}
			return extractValue[R](in)
		}
		if _, err := in.U32(); err != nil { // consume the callback id
			return zero, err
		}
		handled, err := dispatch(id, in, out)
		if err != nil {
			return zero, err
		}
		if !handled {
			return zero, errors.Wrapf(ErrUnknownFunction, "call: callback id %d", id)
		}
		sent, err := conn.WriteMessage(out, pred)
		if err != nil {
			return zero, err
		}
		if !sent {
			return zero, errors.Wrap(wire.ErrUserStop, "call: write interrupted")
		}
	}
}
