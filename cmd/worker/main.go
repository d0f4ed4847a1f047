// Command worker runs the sandboxed execution engine of spec.md §4.3: it
// subscribes to pipeline.node.exec, fetches the referenced module artifact
// from object storage, executes it in a fresh WebAssembly sandbox, and
// publishes pipeline.node.result. Grounded on
// original_source/worker/src/main.rs's startup sequence, with wasmtime
// replaced by wazero and aws-sdk-s3's Rust builder replaced by its Go
// equivalent, both per SPEC_FULL.md's domain-stack mapping.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/creastat/orchestrator/internal/config"
	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/worker"
)

func main() {
	cfg, err := config.Load()
	bootLogger := telemetry.New(os.Stderr, zerolog.InfoLevel).WithModule("worker.main")
	if err != nil {
		bootLogger.Fatal("failed to load configuration", telemetry.Err(err))
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := telemetry.New(os.Stderr, level).WithModule("worker.main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		logger.Fatal("failed to load aws config", telemetry.Err(err))
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = &cfg.S3Endpoint
		}
		o.UsePathStyle = true
	})

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("failed to connect to nats", telemetry.Err(err))
	}
	defer nc.Close()

	w := worker.New(nc, s3Client, logger)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("worker exited with error", telemetry.Err(err))
	}
	logger.Info("worker shut down")
}
