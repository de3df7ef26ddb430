package stream

import (
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"ipc-link/wire"
)

// Endpoint names a stream socket: a unix-domain path or a TCP
// host:port pair.
type Endpoint struct {
	Network string `json:"network"` // "unix" or "tcp"
	Address string `json:"address"`
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// Connect retry parameters, applied on connection-refused and friends.
const (
	connectAttempts   = 10
	connectRetryDelay = time.Second
)

// Dial opens a point-to-point connection to the endpoint.
//
// A unix endpoint refuses to connect when the socket path does not
// exist. A TCP endpoint resolves its host first: lookup failure is
// wire.ErrNameToAddress, a host with no IPv4 record is
// wire.ErrBadHostname. Connects are retried up to 10 times with one
// second spacing while the error is connection-refused, EAGAIN or
// EINPROGRESS.
func Dial(ep Endpoint) (*Conn, error) {
	switch ep.Network {
	case "unix":
		if _, err := os.Stat(ep.Address); err != nil {
			return nil, errors.Wrapf(wire.ErrActiveSocketPrepare, "dial: target %q does not exist", ep.Address)
		}
		return connectRetry("unix", ep.Address)
	case "tcp":
		host, port, err := net.SplitHostPort(ep.Address)
		if err != nil {
			return nil, errors.Wrapf(wire.ErrActiveSocketPrepare, "dial %s: %v", ep, err)
		}
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, errors.Wrapf(wire.ErrNameToAddress, "dial: unable to resolve %q: %v", host, err)
		}
		var v4 net.IP
		for _, ip := range ips {
			if ip4 := ip.To4(); ip4 != nil {
				v4 = ip4
				break
			}
		}
		if v4 == nil {
			return nil, errors.Wrapf(wire.ErrBadHostname, "dial: no IPv4 address for %q", host)
		}
		return connectRetry("tcp", net.JoinHostPort(v4.String(), port))
	default:
		return nil, errors.Wrapf(wire.ErrActiveSocketPrepare, "dial: unsupported network %q", ep.Network)
	}
}

func connectRetry(network, address string) (*Conn, error) {
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		c, err := net.DialTimeout(network, address, connectRetryDelay)
		if err == nil {
			return NewConn(c), nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, errors.Wrapf(wire.ErrActiveSocketPrepare, "dial %s %s: %v", network, address, err)
		}
		time.Sleep(connectRetryDelay)
	}
	return nil, errors.Wrapf(wire.ErrActiveSocketPrepare,
		"dial %s %s: no connection after %d attempts: %v", network, address, connectAttempts, lastErr)
}

// retryable keeps EAGAIN in the retry set alongside the transient
// connect errors, matching the established behavior of the protocol.
func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINPROGRESS)
}
