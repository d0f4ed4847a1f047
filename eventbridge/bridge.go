// Package eventbridge forwards Postgres NOTIFY events verbatim onto a NATS
// JetStream subject, so external observers never poll the database directly
// (spec.md §4.4). Grounded on original_source/event-bridge/src/main.rs's
// PgListener-to-JetStream forwarder, with sqlx's PgListener replaced by
// lib/pq's pq.Listener per SPEC_FULL.md's domain-stack mapping.
package eventbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/creastat/orchestrator/internal/telemetry"
)

const (
	// pgEventChannel is the Postgres NOTIFY channel pipeline_exec row
	// transitions are published on.
	pgEventChannel = "pipeline_execs_events"

	// streamName and subject name the JetStream stream this bridge
	// publishes into, per spec.md §6's bus subject table.
	streamName   = "EXEC_EVENTS"
	eventSubject = "exec.events"

	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = 90 * time.Second
)

// Bridge listens on a single Postgres NOTIFY channel and republishes every
// payload, unmodified, onto a JetStream subject with interest-based
// retention (spec.md §6: "interest-based retention" for exec.events vs.
// work-queue retention for the pipeline.* subjects).
type Bridge struct {
	js     jetstream.JetStream
	dbURL  string
	logger telemetry.Logger
}

// New builds a Bridge over an already-connected NATS connection; dbURL is
// the Postgres connection string pq.Listener dials independently (listen
// connections are never pooled, unlike the regular query connection — see
// lib/pq's Listener docs).
func New(nc *nats.Conn, dbURL string, logger telemetry.Logger) (*Bridge, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("build jetstream context: %w", err)
	}
	return &Bridge{js: js, dbURL: dbURL, logger: logger.WithModule("eventbridge")}, nil
}

// Run ensures the JetStream stream exists, opens a Postgres listener, and
// forwards notifications until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if _, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{eventSubject},
		Retention: jetstream.InterestPolicy,
	}); err != nil {
		return fmt.Errorf("create or update jetstream stream: %w", err)
	}

	listener := pq.NewListener(b.dbURL, minReconnectInterval, maxReconnectInterval, b.reportListenerProblem)
	if err := listener.Listen(pgEventChannel); err != nil {
		return fmt.Errorf("listen on %s: %w", pgEventChannel, err)
	}
	defer listener.Close()

	b.logger.Info("listening for postgres notifications", telemetry.String("channel", pgEventChannel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notification, ok := <-listener.Notify:
			if !ok {
				return fmt.Errorf("postgres listener channel closed")
			}
			if notification == nil {
				// pq sends a nil notification after a reconnect to signal
				// the client may have missed events; nothing to forward.
				continue
			}
			b.forward(ctx, notification.Extra)
		case <-time.After(90 * time.Second):
			// pq.Listener recommends a periodic Ping to detect a dead
			// connection the driver hasn't noticed yet.
			if err := listener.Ping(); err != nil {
				b.logger.Error("postgres listener ping failed", telemetry.Err(err))
			}
		}
	}
}

func (b *Bridge) forward(ctx context.Context, payload string) {
	if _, err := b.js.Publish(ctx, eventSubject, []byte(payload)); err != nil {
		b.logger.Error("failed to publish notification to jetstream", telemetry.Err(err))
		return
	}
	b.logger.Info("published notification to jetstream", telemetry.String("subject", eventSubject))
}

// reportListenerProblem is pq.Listener's event callback: log and continue
// on transient problems, never drop the listener (spec.md §5's failure
// policy for this component).
func (b *Bridge) reportListenerProblem(ev pq.ListenerEventType, err error) {
	if err == nil {
		return
	}
	b.logger.Warn("postgres listener event", telemetry.Err(err), telemetry.Int("event_type", int(ev)))
}
