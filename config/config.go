// Package config loads and validates runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hupe1980/agentcore/identifier"
)

// Config holds all runtime configuration.
type Config struct {
	// Engine factory settings.
	MaxEngines int

	// Session registry settings.
	SessionTTL    time.Duration
	SweepInterval time.Duration
	OperationTag  string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		MaxEngines:    envInt("AGENTCORE_MAX_ENGINES", 100),
		SessionTTL:    envDuration("AGENTCORE_SESSION_TTL", 30*time.Minute),
		SweepInterval: envDuration("AGENTCORE_SWEEP_INTERVAL", time.Minute),
		OperationTag:  envStr("AGENTCORE_OPERATION_TAG", "chat"),
		OTELEndpoint:  envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:   envStr("OTEL_SERVICE_NAME", "agentcore"),
		LogLevel:      envStr("AGENTCORE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.MaxEngines <= 0 {
		return fmt.Errorf("config: AGENTCORE_MAX_ENGINES must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: AGENTCORE_SESSION_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: AGENTCORE_SWEEP_INTERVAL must be positive")
	}
	if !identifier.ValidTag(c.OperationTag) {
		return fmt.Errorf("config: AGENTCORE_OPERATION_TAG %q must be lowercase alphanumerics and dashes", c.OperationTag)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
