package fluentlogger

import (
	"fmt"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// Config describes how to reach Fluent Bit.
type Config struct {
	Host      string
	Port      int
	TagPrefix string // prepended to every tag, usually the app name
	// Async makes Post non-blocking; records are buffered and sent in the background.
	Async bool
}

// NewClient creates a Fluent Bit client. fluent.New does not ping the
// server, so a wrong address only shows up on the first Post.
func NewClient(cfg Config) (*fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, fmt.Errorf("fluent tag prefix is required")
	}

	client, err := fluent.New(fluent.Config{
		FluentHost:   cfg.Host,
		FluentPort:   cfg.Port,
		TagPrefix:    cfg.TagPrefix,
		Async:        cfg.Async,
		Timeout:      3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fluent logger: %w", err)
	}

	return client, nil
}
