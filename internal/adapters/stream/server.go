package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port/usecases_port"
)

// Server accepts streaming peers on a TCP address, one Session per connection.
type Server struct {
	addr         string
	orchestrator usecases_port.OrchestrateSearchPort
	cfg          SessionConfig
	logger       port.LoggerPort

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(addr string, orchestrator usecases_port.OrchestrateSearchPort, cfg SessionConfig, baseLogger port.LoggerPort) *Server {
	return &Server{
		addr:         addr,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       baseLogger.WithFields(port.Fields{"component": "StreamServer"}),
		sessions:     make(map[*Session]struct{}),
	}
}

// Start listens on the configured address and blocks until ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("stream server: failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Stream server listening", port.Fields{"address": ln.Addr().String()})

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stopWatch:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("stream server: accept failed: %w", err)
		}

		session := NewSession(conn, s.orchestrator, s.cfg, s.logger)
		if !s.track(session) {
			_ = conn.Close()
			return nil
		}

		go func() {
			defer s.untrack(session)
			if err := session.Serve(ctx); err != nil {
				s.logger.Warn("Session ended with error", port.Fields{"error": err.Error()})
			}
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
	s.wg.Done()
}

// Close stops accepting peers, asks every session to drain and waits for them.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for session := range s.sessions {
		session.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Stream server stopped", nil)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
