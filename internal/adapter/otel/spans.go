package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "incidentd"

// StartPublishSpan starts a span for the fan-out of one event.
func StartPublishSpan(ctx context.Context, eventType string, incidentID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "event.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.Int64("incident.id", incidentID),
		),
	)
}

// StartRelaySpan starts a span for forwarding an event to the message broker.
func StartRelaySpan(ctx context.Context, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "event.relay",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination", subject)),
	)
}
