// Package broadcast defines the port for publishing real-time events to
// connected stream subscribers.
package broadcast

import (
	"context"

	"github.com/sst-platform/incidentd/internal/domain/event"
)

// Publisher fans an envelope out to every live subscriber.
// Implementations must not block on subscriber I/O.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope) error
}
