/*
Package server runs the TLS TCP listener for the line protocol.

It accepts connections, applies per-IP rate limiting, and hands each
accepted connection to its own chat.Handler goroutine. Shutdown closes
the listener and every live connection, then waits for the handlers to
detach.
*/
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/chat"
	"github.com/PedroMMarinho/FEUP-CPD/internal/configs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/limiter"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

const (
	// AcceptRate and AcceptBurst bound how fast one IP may open
	// connections.
	AcceptRate  = 1.0
	AcceptBurst = 5
)

// Server owns the chat listener and the set of live connections.
type Server struct {
	deps     *chat.Deps
	listener net.Listener
	limiter  *limiter.IPRateLimiter

	// mu protects conns. Tracked so shutdown can close them all.
	mu    sync.Mutex
	conns map[net.Conn]struct{}

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New builds a Server listening with TLS on the configured chat port.
func New(cfg *configs.AppConfig, deps *chat.Deps) (*Server, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	listener, err := tls.Listen("tcp", fmt.Sprintf(":%d", cfg.ChatPort), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat listener: %w", err)
	}

	return newWithListener(deps, listener), nil
}

// newWithListener wires a Server around an existing listener. Split out
// so tests can serve over a plain local listener.
func newWithListener(deps *chat.Deps, listener net.Listener) *Server {
	return &Server{
		deps:     deps,
		listener: listener,
		limiter:  limiter.NewIPRateLimiter(rate.Limit(AcceptRate), AcceptBurst),
		conns:    make(map[net.Conn]struct{}),
		logger:   logx.Logger().With().Str("component", "ChatServer").Logger(),
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every
// live connection and waits for the handlers to finish detaching.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Chat server listening.")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			s.logger.Warn().Err(err).Msg("Accept failed.")
			continue
		}

		ip := remoteIP(conn)
		if !s.limiter.Allow(ip) {
			s.logger.Warn().Str("ip", ip).Msg("Connection rejected: rate limit exceeded.")
			conn.Close()
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)

			chat.NewHandler(conn, s.deps).Run(ctx)
		}()
	}

	s.closeAll()
	s.wg.Wait()

	s.logger.Info().Msg("Chat server stopped.")
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// closeAll closes every tracked connection, unblocking its handler's read
// loop so cleanup runs.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.Close()
	}
}

// remoteIP extracts the host part of the connection's remote address.
func remoteIP(conn net.Conn) string {
	ip, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil || ip == "" {
		return conn.RemoteAddr().String()
	}
	return ip
}
