package ingress

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// ConnHandler processes one accepted PBX connection. Implementations should
// honour ctx cancellation and return once the call has fully wound down.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Server accepts AudioSocket connections on a single TCP listener and hands
// each one to a [ConnHandler], mirroring the plain net.Listen-based accept
// loop shape used throughout the reference corpus for custom wire protocols.
type Server struct {
	addr    string
	handler ConnHandler
}

// NewServer creates a [Server] bound to addr (host:port, default port 9092
// per spec). Connections are dispatched to handler in their own goroutine.
func NewServer(addr string, handler ConnHandler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Serve binds the listener and accepts connections until ctx is cancelled or
// a non-temporary accept error occurs. It blocks until the listener stops.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("ingress listener started", "addr", s.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go s.handler(ctx, conn)
	}
}
