// Command scheduler runs the DAG-aware run controller of spec.md §4.2: it
// subscribes to pipeline.exec, pipeline.plan and pipeline.node.result and
// advances pipeline runs until they reach a terminal status. Grounded on
// original_source/scheduler/src/main.rs's startup sequence (env vars,
// database pool, NATS connect, subscribe, wait-for-signal), rendered in the
// Go idiom of signal.NotifyContext + errgroup instead of tokio::spawn +
// ctrl_c().
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/creastat/orchestrator/internal/config"
	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/scheduler"
)

func main() {
	cfg, err := config.Load()
	bootLogger := telemetry.New(os.Stderr, zerolog.InfoLevel).WithModule("scheduler.main")
	if err != nil {
		bootLogger.Fatal("failed to load configuration", telemetry.Err(err))
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := telemetry.New(os.Stderr, level).WithModule("scheduler.main")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database connection", telemetry.Err(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MaxDBConnections)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping database", telemetry.Err(err))
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("failed to connect to nats", telemetry.Err(err))
	}
	defer nc.Close()

	s := scheduler.New(db, nc, logger)
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("scheduler exited with error", telemetry.Err(err))
	}
	logger.Info("scheduler shut down")
}
