// Package httpserver runs an http.Server in the background with bounded timeouts.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 2 * time.Minute
	defaultAddr              = ":8080"
	defaultShutdownTimeout   = 3 * time.Second
)

// Server wraps http.Server.
type Server struct {
	server          *http.Server
	errCh           chan error
	shutdownTimeout time.Duration
}

// Options configures New. Zero values fall back to defaults.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	// WriteTimeout stays zero by default: file downloads can take long.
	WriteTimeout time.Duration
}

// New creates the server without starting it.
func New(handler http.Handler, opt Options) *Server {
	addr := opt.Addr
	if addr == "" {
		addr = defaultAddr
	}

	shutdownTimeout := opt.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		server: &http.Server{
			Handler:           handler,
			Addr:              addr,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			WriteTimeout:      opt.WriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
		errCh:           make(chan error, 1),
		shutdownTimeout: shutdownTimeout,
	}
}

// Start binds the address and serves in the background. Bind errors are returned
// directly; later serve errors arrive on Notify.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	go s.serve(ln)

	return nil
}

func (s *Server) serve(ln net.Listener) {
	err := s.server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		s.errCh <- err
	}

	close(s.errCh)
}

// Notify reports a serve failure. The channel is closed once the server stops.
func (s *Server) Notify() <-chan error {
	return s.errCh
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Shutdown stops accepting connections and waits for in-flight requests
// for at most the shutdown timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}
