// Package nats implements the outbound message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sst-platform/incidentd/internal/config"
)

// Relay implements messagequeue.Publisher using NATS JetStream.
type Relay struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// capturing cfg.Subject exists.
func Connect(ctx context.Context, cfg config.NATS) (*Relay, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("incidentd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream, "subject", cfg.Subject)
	return &Relay{nc: nc, js: js, stream: cfg.Stream}, nil
}

// Publish sends a message to the given subject and waits for the JetStream ack.
func (r *Relay) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := r.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (r *Relay) IsConnected() bool {
	return r.nc.IsConnected()
}

// KeyValue creates or opens the named JetStream KV bucket. Entries expire
// after ttl; zero keeps them until deleted.
func (r *Relay) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := r.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Close drains the NATS connection, flushing pending publishes.
func (r *Relay) Close() error {
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
