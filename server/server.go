// Package server implements the RPC accept loop: one connection at a
// time, one request per connection, any number of nested callbacks in
// between.
//
// Request lifecycle:
//
//	Accept → read request → consume function id → middleware chain
//	  → Dispatcher.Invoke (may call back into the client over the same
//	    connection) → write [DoneTag, result] → wait for peer shutdown
//	  → close
//
// Everything a connection raises, except a user stop, is routed to the
// dispatcher's error report and the loop resumes with the next accept.
// A user stop unwinds out of Run entirely.
package server

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ipc-link/message"
	"ipc-link/middleware"
	"ipc-link/registry"
	"ipc-link/stream"
	"ipc-link/wire"
)

// Dispatcher is the user-supplied routing capability. Invoke is
// expected to drive an invoke.FunctionN adapter with EmitDone true,
// which reads the remaining arguments from in, runs the service, and
// packs [wire.DoneTag, result] into out. The connection is passed
// through so services can issue nested callbacks to the client.
type Dispatcher interface {
	Invoke(id uint32, in *message.In, out *message.Out, conn *stream.Conn) error
	ReportError(err error)
	Ready()
}

// Server owns a listening endpoint and serves connections strictly
// serially. Parallelism, if desired, comes from the user running
// several Server instances; the core spawns no goroutines per request.
type Server struct {
	listener    *stream.Listener
	endpoint    stream.Endpoint
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.Handler

	reg         registry.Registry
	serviceName string
	instance    registry.Instance
}

// NewServer binds a listening socket on the endpoint. A nil logger
// disables logging.
func NewServer(ep stream.Endpoint, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := stream.Listen(ep)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		endpoint: ep,
		logger:   logger,
	}, nil
}

// Use registers a dispatch interceptor. Interceptors run in the order
// they were added, outermost first. Must be called before Run.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Announce registers this server in the naming registry so callers can
// reach it with CallByName. Close deregisters it again.
func (s *Server) Announce(reg registry.Registry, service string, inst registry.Instance, ttl int64) error {
	if inst.Endpoint == (stream.Endpoint{}) {
		inst.Endpoint = s.endpoint
	}
	if err := reg.Register(service, inst, ttl); err != nil {
		return err
	}
	s.reg = reg
	s.serviceName = service
	s.instance = inst
	return nil
}

// Run reports ready once, then accepts and serves connections until the
// predicate flips, which unwinds with wire.ErrUserStop.
func (s *Server) Run(d Dispatcher, pred stream.Predicate) error {
	// Build the interceptor chain once, not per request.
	s.handler = middleware.Chain(s.middlewares...)(func(ctx context.Context, id uint32, in *message.In, out *message.Out, conn *stream.Conn) error {
		return d.Invoke(id, in, out, conn)
	})

	d.Ready()

	in := message.NewIn()
	out := message.NewOut()
	for {
		if pred != nil && !pred() {
			return errors.Wrap(wire.ErrUserStop, "run")
		}
		conn, err := s.listener.Accept(pred)
		if err != nil {
			if errors.Is(err, wire.ErrUserStop) {
				return err
			}
			d.ReportError(err)
			continue
		}
		err = s.serveConn(conn, in, out, pred)
		conn.Close()
		if err != nil {
			if errors.Is(err, wire.ErrUserStop) {
				return err
			}
			d.ReportError(err)
		}
	}
}

// serveConn handles one connection: exactly one request, its callback
// chain, and the reply.
func (s *Server) serveConn(conn *stream.Conn, in *message.In, out *message.Out, pred stream.Predicate) error {
	got, err := conn.ReadMessage(in, pred)
	if err != nil {
		return err
	}
	if !got {
		return errors.Wrap(wire.ErrUserStop, "serve: read interrupted")
	}

	// The first payload word routes the request.
	id, err := in.U32()
	if err != nil {
		return err
	}
	s.logger.Debug("dispatching request", zap.Uint32("id", id))

	out.Clear()
	if err := s.handler(context.Background(), id, in, out, conn); err != nil {
		return err
	}

	sent, err := conn.WriteMessage(out, pred)
	if err != nil {
		return err
	}
	if !sent {
		return errors.Wrap(wire.ErrUserStop, "serve: write interrupted")
	}

	// The peer closes once it has consumed the reply; waiting here keeps
	// the close from racing the last write.
	return conn.WaitForShutdown(pred)
}

// Addr exposes the bound listener address (useful with ephemeral TCP
// ports).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close deregisters from the naming registry, if announced, and closes
// the listener. A unix-domain listener removes its socket path.
func (s *Server) Close() error {
	if s.reg != nil {
		if err := s.reg.Deregister(s.serviceName, s.instance.Endpoint); err != nil {
			s.logger.Warn("deregister failed", zap.String("service", s.serviceName), zap.Error(err))
		}
		s.reg = nil
	}
	return s.listener.Close()
}
