// Package server runs an http.Handler on a TCP listener bound to a context
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultReadHeaderTimeout is used when Server.ReadHeaderTimeout is zero
const DefaultReadHeaderTimeout = 10 * time.Second

type Server struct {
	// ReadHeaderTimeout bounds how long a client may take to send request
	// headers. Runs themselves are bounded by the request context only
	ReadHeaderTimeout time.Duration

	context  context.Context
	listener *net.TCPListener

	mutex  sync.Mutex
	server *http.Server
}

// Listen binds the listening socket. Requests served later inherit ctx as
// their base context, so cancelling it cancels in flight runs
func (s *Server) Listen(ctx context.Context, listenAddress string) (*net.TCPAddr, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return nil, err
	}
	s.context = ctx
	s.listener = listener.(*net.TCPListener)
	return s.Address(), nil
}

// Serve blocks serving handler until the server is shut down
func (s *Server) Serve(handler http.Handler) error {
	if s.listener == nil {
		return errors.New("server must be listening first")
	}
	readHeaderTimeout := s.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = DefaultReadHeaderTimeout
	}
	server := &http.Server{
		Addr:              s.listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.context },
	}
	s.mutex.Lock()
	s.server = server
	s.mutex.Unlock()
	return server.Serve(s.listener)
}

// IsClosedError reports whether err is how Serve returns after a shutdown,
// including a shutdown that closed the listener before Serve started
func IsClosedError(err error) bool {
	return errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

func (s *Server) Address() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}
	addr := s.listener.Addr().(*net.TCPAddr)
	addrCopy := *addr
	return &addrCopy
}

// URL is the base http URL of the listening address
func (s *Server) URL() string {
	addr := s.Address()
	if addr == nil {
		return ""
	}
	return "http://" + addr.AddrPort().String()
}

func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the server gracefully. When Serve was never called it only
// closes the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	server := s.server
	s.mutex.Unlock()
	if server == nil {
		if s.listener == nil {
			return nil
		}
		return s.listener.Close()
	}
	return server.Shutdown(ctx)
}
