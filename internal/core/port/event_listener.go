package port

import "context"

// EventListenerPort is an inbound component that receives commands from the
// outside (socket, broker queue) and drives the core with them
type EventListenerPort interface {
	// Start blocks until ctx is cancelled or the listener fails
	Start(ctx context.Context) error

	// Close stops the listener and waits for in-flight work
	Close() error
}
