package logger_adapter

import (
	"fmt"

	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

// MultiLoggerAdapter fans every record out to several loggers, typically
// stdout and Fluent Bit.
type MultiLoggerAdapter struct {
	loggers []port.LoggerPort
}

// NewMultiloggerAdapter combines the given loggers. Nil entries are skipped,
// nested multi-loggers are flattened, and a single remaining logger is
// returned as is, so optional sinks can be passed unconditionally.
func NewMultiloggerAdapter(loggers ...port.LoggerPort) (port.LoggerPort, error) {
	flat := flatten(loggers)
	switch len(flat) {
	case 0:
		return nil, fmt.Errorf("multilogger: at least one logger is required")
	case 1:
		return flat[0], nil
	}
	return &MultiLoggerAdapter{loggers: flat}, nil
}

func flatten(loggers []port.LoggerPort) []port.LoggerPort {
	flat := make([]port.LoggerPort, 0, len(loggers))
	for _, logger := range loggers {
		switch l := logger.(type) {
		case nil:
		case *MultiLoggerAdapter:
			flat = append(flat, l.loggers...)
		default:
			flat = append(flat, l)
		}
	}
	return flat
}

func (m *MultiLoggerAdapter) each(write func(port.LoggerPort)) {
	for _, logger := range m.loggers {
		write(logger)
	}
}

func (m *MultiLoggerAdapter) Info(msg string, fields port.Fields) {
	m.each(func(l port.LoggerPort) { l.Info(msg, fields) })
}

func (m *MultiLoggerAdapter) Warn(msg string, fields port.Fields) {
	m.each(func(l port.LoggerPort) { l.Warn(msg, fields) })
}

func (m *MultiLoggerAdapter) Error(msg string, err error, fields port.Fields) {
	m.each(func(l port.LoggerPort) { l.Error(msg, err, fields) })
}

func (m *MultiLoggerAdapter) Debug(msg string, fields port.Fields) {
	m.each(func(l port.LoggerPort) { l.Debug(msg, fields) })
}

func (m *MultiLoggerAdapter) WithFields(fields port.Fields) port.LoggerPort {
	enriched := make([]port.LoggerPort, 0, len(m.loggers))
	m.each(func(l port.LoggerPort) { enriched = append(enriched, l.WithFields(fields)) })
	return &MultiLoggerAdapter{loggers: enriched}
}
