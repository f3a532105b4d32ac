package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sst-platform/incidentd/internal/domain/event"
)

const meterName = "incidentd"

// Metrics holds all incidentd metric instruments. It also satisfies
// realtime.Observer so the broadcaster reports fan-out counts directly.
type Metrics struct {
	IncidentsCreated  metric.Int64Counter
	EventsPublished   metric.Int64Counter
	EventsDelivered   metric.Int64Counter
	EventsDropped     metric.Int64Counter
	StreamSubscribers metric.Int64UpDownCounter
	RelayFailures     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.IncidentsCreated, err = meter.Int64Counter("incidentd.incidents.created",
		metric.WithDescription("Number of incidents persisted"))
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("incidentd.events.published",
		metric.WithDescription("Number of envelopes fanned out to stream subscribers"))
	if err != nil {
		return nil, err
	}

	m.EventsDelivered, err = meter.Int64Counter("incidentd.events.delivered",
		metric.WithDescription("Number of envelopes enqueued to a subscriber"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("incidentd.events.dropped",
		metric.WithDescription("Number of envelopes dropped on a full subscriber queue"))
	if err != nil {
		return nil, err
	}

	m.StreamSubscribers, err = meter.Int64UpDownCounter("incidentd.stream.subscribers",
		metric.WithDescription("Number of connected stream subscribers"))
	if err != nil {
		return nil, err
	}

	m.RelayFailures, err = meter.Int64Counter("incidentd.relay.failures",
		metric.WithDescription("Number of envelopes the NATS relay failed to accept"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) SubscriberAdded(ctx context.Context) {
	m.StreamSubscribers.Add(ctx, 1)
}

func (m *Metrics) SubscriberRemoved(ctx context.Context) {
	m.StreamSubscribers.Add(ctx, -1)
}

func (m *Metrics) Published(ctx context.Context, eventType event.Type, delivered, dropped int) {
	attrs := metric.WithAttributes(attribute.String("event.type", string(eventType)))
	m.EventsPublished.Add(ctx, 1, attrs)
	m.EventsDelivered.Add(ctx, int64(delivered), attrs)
	if dropped > 0 {
		m.EventsDropped.Add(ctx, int64(dropped), attrs)
	}
}
