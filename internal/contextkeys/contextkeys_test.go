package contextkeys

import (
	"context"
	"testing"

	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/stretchr/testify/assert"
)

type namedLogger struct {
	noopLogger
	name string
}

func TestLoggerFromContext(t *testing.T) {
	// empty context falls back to a logger that is safe to call
	fallback := LoggerFromContext(context.Background())
	assert.NotPanics(t, func() {
		fallback.WithFields(port.Fields{"k": "v"}).Error("x", nil, nil)
	})

	logger := &namedLogger{name: "req"}
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))
}

func TestTraceIDFromContext(t *testing.T) {
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
	ctx := ContextWithTraceID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", TraceIDFromContext(ctx))
}
