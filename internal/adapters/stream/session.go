package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port/usecases_port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/usecase"
	"github.com/google/uuid"
)

const (
	maxCommandSize = 64 * 1024

	DefaultWriteTimeout = 10 * time.Second
	DefaultDrainTimeout = 15 * time.Second
)

type SessionConfig struct {
	QueueCapacity int
	SendBuffer    int
	// WriteTimeout bounds a single write to the peer.
	WriteTimeout time.Duration
	// DrainTimeout bounds how long a closing session waits for its running search.
	DrainTimeout time.Duration
}

// Session serves one connected peer. Its searches run strictly one after
// another on a dispatcher owned by the session.
type Session struct {
	id         string
	conn       net.Conn
	sink       *ConnSink
	dispatcher *usecase.SearchDispatcher
	cfg        SessionConfig
	logger     port.LoggerPort

	stopOnce sync.Once
	stopCh   chan struct{}
	stopping atomic.Bool
}

func NewSession(conn net.Conn, orchestrator usecases_port.OrchestrateSearchPort, cfg SessionConfig, baseLogger port.LoggerPort) *Session {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	id := uuid.New().String()
	logger := baseLogger.WithFields(port.Fields{
		"session_id":  id,
		"remote_addr": conn.RemoteAddr().String(),
	})

	sink := NewConnSink(deadlineWriter{conn: conn, timeout: cfg.WriteTimeout}, cfg.SendBuffer, logger)
	dispatcher := usecase.NewSearchDispatcher(orchestrator, sink, usecase.DispatcherConfig{
		QueueCapacity: cfg.QueueCapacity,
	}, logger)

	return &Session{
		id:         id,
		conn:       conn,
		sink:       sink,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Serve reads commands until the peer sends exit, disconnects, or the
// session is stopped. The connection is closed when Serve returns.
func (s *Session) Serve(ctx context.Context) error {
	s.logger.Info("Session opened", nil)

	// searches outlive ctx so a stopping session can still drain
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer runCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.dispatcher.Run(runCtx); err != nil {
			s.logger.Error("Session dispatcher failed", err, nil)
		}
	}()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		case <-watchDone:
			return
		}
		// unblocks the pending read
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	graceful := s.readCommands(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	if !graceful {
		cancel()
	}
	if err := s.dispatcher.Shutdown(drainCtx); err != nil {
		s.logger.Warn("Running search cancelled on session close", port.Fields{"error": err.Error()})
	}
	cancel()
	runCancel()
	wg.Wait()

	sinkErr := s.sink.Close()
	_ = s.conn.Close()

	s.logger.Info("Session closed", port.Fields{"graceful": graceful})
	// a peer that said exit should have received everything
	if graceful && sinkErr != nil {
		return fmt.Errorf("stream session: failed to flush events: %w", sinkErr)
	}
	return nil
}

// readCommands returns true when the session should drain its running
// search, false when the peer is gone.
func (s *Session) readCommands(ctx context.Context) bool {
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxCommandSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		traceID := uuid.New().String()
		cmdLogger := s.logger.WithFields(port.Fields{"trace_id": traceID})
		cmdCtx := contextkeys.ContextWithLogger(ctx, cmdLogger)
		cmdCtx = contextkeys.ContextWithTraceID(cmdCtx, traceID)

		cmd, err := contracts.ParseCommand(line)
		if err != nil {
			cmdLogger.Warn("Rejected invalid command", port.Fields{"error": err.Error()})
			s.reply(cmdCtx, contracts.NewCommandError(err.Error(), ""))
			continue
		}

		switch cmd.Type {
		case contracts.CommandExit:
			cmdLogger.Info("Peer requested exit", nil)
			return true
		case contracts.CommandSearch:
			if _, err := s.dispatcher.Enqueue(cmdCtx, cmd.Query); err != nil {
				if errors.Is(err, domain.ErrTransportDisconnected) {
					return false
				}
				cmdLogger.Warn("Search rejected", port.Fields{"query": cmd.Query, "error": err.Error()})
				s.reply(cmdCtx, contracts.NewCommandError(err.Error(), cmd.Query))
			}
		}
	}

	if s.stopping.Load() {
		return true
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("Peer read failed", port.Fields{"error": err.Error()})
	} else {
		s.logger.Info("Peer disconnected", nil)
	}
	return false
}

func (s *Session) reply(ctx context.Context, msg interface{}) {
	if err := s.sink.Send(ctx, msg); err != nil {
		s.logger.Warn("Failed to reply to peer", port.Fields{"error": err.Error()})
	}
}

// Stop ends the session as if the peer had sent exit.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopCh)
	})
}

type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}
