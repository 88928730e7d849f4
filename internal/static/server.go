package static

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

// loopbackAddr asks the OS for an ephemeral port on the IPv4 loopback.
const loopbackAddr = "127.0.0.1:0"

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrNotLoopback is returned if the listener ended up on a
	// non-loopback address.
	ErrNotLoopback = errors.New("listener is not bound to loopback")
)

// Server is an HTTPS listener for the static handler. The zero port means
// the server has not been started.
type Server struct {
	handler   http.Handler
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	port    int
	started bool
	closed  bool
	done    chan struct{}
}

// NewServer creates a Server. Nothing is bound until Start.
func NewServer(handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) *Server {
	return &Server{
		handler:   handler,
		tlsConfig: tlsConfig,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start binds the loopback listener and begins serving in the background.
// It returns the assigned port once the socket is listening, so callers can
// point clients at it without racing the accept loop.
func (s *Server) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return 0, ErrAlreadyStarted
	}
	if s.tlsConfig == nil {
		return 0, errors.New("server requires a TLS config")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", loopbackAddr)
	if err != nil {
		return 0, fmt.Errorf("listen %s: %w", loopbackAddr, err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || !addr.IP.IsLoopback() || addr.Port == 0 {
		ln.Close()
		return 0, fmt.Errorf("%w: %s", ErrNotLoopback, ln.Addr())
	}

	s.srv = &http.Server{
		Handler:   s.handler,
		TLSConfig: s.tlsConfig.Clone(),
		ErrorLog:  slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		// HTTP/1.1 only.
		TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
	}
	s.port = addr.Port
	s.started = true

	srv := s.srv
	go func() {
		defer close(s.done)
		if err := srv.ServeTLS(ln, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("static server stopped", "error", err, "why", "ServeTLS returned unexpectedly")
		}
	}()

	s.logger.Info("static server listening", "addr", addr.String(), "url", s.url())
	return s.port, nil
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns the https://localhost:<port> origin, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url()
}

func (s *Server) url() string {
	if s.port == 0 {
		return ""
	}
	return fmt.Sprintf("https://localhost:%d", s.port)
}

// Close stops the listener and drops open connections without draining.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("static server closing", "port", s.port)
	return s.srv.Close()
}

// Done is closed once the accept loop has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
