// Package stream carries framed messages over point-to-point stream
// sockets (unix domain or TCP).
//
// Every blocking primitive — Accept, ReadMessage, WriteMessage,
// WaitForShutdown — takes a continuation predicate: a nullary function
// polled while waiting. When it returns false the primitive gives up, so
// user code keeps control over shutdown without preemption or timers.
// Blocking is implemented by slicing the wait into short deadline
// windows and polling the predicate between them.
package stream

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"

	"ipc-link/message"
	"ipc-link/wire"
)

// Predicate is polled during any blocking operation. Returning false
// aborts the wait. A nil predicate never aborts.
type Predicate func() bool

// pollInterval is the deadline slice between predicate polls.
const pollInterval = 100 * time.Millisecond

// Conn is a point-to-point socket carrying one top-level request, its
// callback chain, and the reply. Messages are strictly serialized in
// request/reply/callback order; the connection is owned by a single call
// chain and is not safe for concurrent use.
type Conn struct {
	c net.Conn
}

// NewConn wraps an established duplex stream.
func NewConn(c net.Conn) *Conn {
	return &Conn{c: c}
}

// ReadMessage blocks until one complete framed message arrives and
// attaches it to in. It returns false only when the predicate tripped;
// exceptional conditions return an error.
func (pc *Conn) ReadMessage(in *message.In, pred Predicate) (bool, error) {
	prefix := make([]byte, wire.LenSize)
	if ok, err := pc.readFull(prefix, pred); !ok || err != nil {
		return false, err
	}
	total := binary.LittleEndian.Uint32(prefix)
	if total < wire.LenSize || total > wire.MaxMessageSize {
		return false, errors.Wrapf(wire.ErrBadMessage, "read: frame length %d out of range", total)
	}
	buf := make([]byte, total)
	copy(buf, prefix)
	if ok, err := pc.readFull(buf[wire.LenSize:], pred); !ok || err != nil {
		return false, err
	}
	if err := in.Attach(buf); err != nil {
		return false, err
	}
	return true, nil
}

// WriteMessage writes the whole framed buffer. It returns false if the
// predicate tripped mid-write.
func (pc *Conn) WriteMessage(out *message.Out, pred Predicate) (bool, error) {
	buf := out.Bytes()
	n := 0
	for n < len(buf) {
		if pred != nil && !pred() {
			return false, nil
		}
		pc.c.SetWriteDeadline(time.Now().Add(pollInterval))
		w, err := pc.c.Write(buf[n:])
		n += w
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return false, errors.Wrap(wire.ErrSocketAPI, err.Error())
		}
	}
	return true, nil
}

// WaitForShutdown blocks until the peer closes its end of the
// connection. Used by a server after writing the reply, so the peer is
// known to have consumed it before the connection is torn down. A
// predicate trip fails with wire.ErrUserStop.
func (pc *Conn) WaitForShutdown(pred Predicate) error {
	one := make([]byte, 1)
	for {
		if pred != nil && !pred() {
			return errors.Wrap(wire.ErrUserStop, "wait for shutdown")
		}
		pc.c.SetReadDeadline(time.Now().Add(pollInterval))
		_, err := pc.c.Read(one)
		if err == nil {
			// Stray bytes after the final reply; keep draining until close.
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		return nil
	}
}

// Close closes the underlying socket.
func (pc *Conn) Close() error {
	return pc.c.Close()
}

func (pc *Conn) readFull(buf []byte, pred Predicate) (bool, error) {
	n := 0
	for n < len(buf) {
		if pred != nil && !pred() {
			return false, nil
		}
		pc.c.SetReadDeadline(time.Now().Add(pollInterval))
		r, err := pc.c.Read(buf[n:])
		n += r
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return false, errors.Wrap(wire.ErrSocketAPI, err.Error())
		}
	}
	return true, nil
}
