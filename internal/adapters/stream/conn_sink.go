package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

const DefaultSendBuffer = 256

// ConnSink pushes events of a session down one connection as
// newline-delimited JSON. A single writer goroutine keeps them in order.
// Once a write fails every later call returns domain.ErrTransportDisconnected.
type ConnSink struct {
	w      io.Writer
	out    chan []byte
	logger port.LoggerPort

	// sendMu guards closing out against concurrent senders
	sendMu sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	stopped chan struct{}
}

func NewConnSink(w io.Writer, buffer int, logger port.LoggerPort) *ConnSink {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	s := &ConnSink{
		w:       w,
		out:     make(chan []byte, buffer),
		logger:  logger.WithFields(port.Fields{"component": "ConnSink"}),
		stopped: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *ConnSink) writeLoop() {
	defer close(s.stopped)
	for msg := range s.out {
		if s.Err() != nil {
			// keep draining so senders never block on a dead peer
			continue
		}
		if _, err := s.w.Write(msg); err != nil {
			s.fail(err)
		}
	}
}

func (s *ConnSink) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
		s.logger.Warn("Peer write failed, marking transport as disconnected", port.Fields{"error": err.Error()})
	}
}

// Err returns the write error that broke the connection, if any.
func (s *ConnSink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *ConnSink) disconnected() error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)
	}
	return nil
}

func (s *ConnSink) JobQueued(ctx context.Context, job domain.Job) error {
	return s.disconnected()
}

func (s *ConnSink) JobStarted(ctx context.Context, job domain.Job) error {
	return s.disconnected()
}

func (s *ConnSink) Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error {
	return s.Send(ctx, contracts.NewEventMessage(job.ID, event))
}

// Send queues any JSON message for the peer, after everything sent before it.
func (s *ConnSink) Send(ctx context.Context, msg interface{}) error {
	if err := s.disconnected(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conn sink: failed to marshal message: %w", err)
	}
	body = append(body, '\n')

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: sink closed", domain.ErrTransportDisconnected)
	}

	select {
	case s.out <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits until queued messages are written or dropped.
func (s *ConnSink) Close() error {
	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	s.sendMu.Unlock()

	<-s.stopped
	return s.Err()
}
