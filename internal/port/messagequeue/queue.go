// Package messagequeue defines the outbound message queue port (interface).
package messagequeue

import "context"

// Publisher sends encoded events to an external broker for downstream consumers.
type Publisher interface {
	// Publish sends data to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close drains pending publishes and closes the connection.
	Close() error
}
