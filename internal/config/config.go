// Package config loads the process environment the orchestrator's three
// binaries need (spec.md §6: bus URL, database URL, object-storage endpoint
// and credentials, optional telemetry endpoint, max DB pool size).
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-derived setting shared by the scheduler,
// worker and event-bridge binaries. Individual binaries read only the
// fields they need.
type Config struct {
	NATSURL           string
	DatabaseURL       string
	MaxDBConnections  int
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	S3Region          string
	TelemetryEndpoint string
	LogLevel          string
}

// Load reads .env (if present) then the process environment, the same
// two-step order cmd/divinesense/main.go uses.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MAX_CONNECTIONS", 10)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("LOG_LEVEL", "info")

	for _, key := range []string{
		"NATS_URL", "DATABASE_URL", "MAX_CONNECTIONS",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "S3_REGION",
		"TELEMETRY_URL", "LOG_LEVEL",
	} {
		_ = v.BindEnv(key)
	}

	cfg := Config{
		NATSURL:           v.GetString("NATS_URL"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		MaxDBConnections:  v.GetInt("MAX_CONNECTIONS"),
		S3Endpoint:        v.GetString("MINIO_ENDPOINT"),
		S3AccessKey:       v.GetString("MINIO_ACCESS_KEY"),
		S3SecretKey:       v.GetString("MINIO_SECRET_KEY"),
		S3Region:          v.GetString("S3_REGION"),
		TelemetryEndpoint: v.GetString("TELEMETRY_URL"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}

	if cfg.NATSURL == "" {
		return Config{}, fmt.Errorf("NATS_URL must be set")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	return cfg, nil
}
