// Command eventbridge forwards Postgres NOTIFY events onto a NATS
// JetStream subject (spec.md §4.4). Grounded on
// original_source/event-bridge/src/main.rs's startup sequence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/creastat/orchestrator/eventbridge"
	"github.com/creastat/orchestrator/internal/config"
	"github.com/creastat/orchestrator/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	bootLogger := telemetry.New(os.Stderr, zerolog.InfoLevel).WithModule("eventbridge.main")
	if err != nil {
		bootLogger.Fatal("failed to load configuration", telemetry.Err(err))
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := telemetry.New(os.Stderr, level).WithModule("eventbridge.main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("failed to connect to nats", telemetry.Err(err))
	}
	defer nc.Close()

	bridge, err := eventbridge.New(nc, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to build event bridge", telemetry.Err(err))
	}

	if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("event bridge exited with error", telemetry.Err(err))
	}
	logger.Info("event bridge shut down")
}
