package stream

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"

	"ipc-link/wire"
)

// Listener is a passive stream socket accepting point-to-point
// connections. A unix-domain listener owns its filesystem path and
// removes it on Close.
type Listener struct {
	ln   net.Listener
	path string
}

// Listen binds and listens on the endpoint.
func Listen(ep Endpoint) (*Listener, error) {
	ln, err := net.Listen(ep.Network, ep.Address)
	if err != nil {
		return nil, errors.Wrapf(wire.ErrPassiveSocketPrepare, "listen %s: %v", ep, err)
	}
	l := &Listener{ln: ln}
	if ep.Network == "unix" {
		l.path = ep.Address
	}
	return l, nil
}

// Accept blocks until a peer connects or the predicate returns false,
// in which case it fails with wire.ErrUserStop.
func (l *Listener) Accept(pred Predicate) (*Conn, error) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	for {
		if pred != nil && !pred() {
			return nil, errors.Wrap(wire.ErrUserStop, "accept")
		}
		if d, ok := l.ln.(deadliner); ok {
			d.SetDeadline(time.Now().Add(pollInterval))
		}
		c, err := l.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, errors.Wrap(wire.ErrSocketAPI, err.Error())
		}
		return NewConn(c), nil
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting and removes the unix socket path, if any.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if l.path != "" {
		os.Remove(l.path)
	}
	return err
}
