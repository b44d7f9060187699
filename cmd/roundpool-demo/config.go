package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fluxorio/roundpool/pkg/config"
	"github.com/fluxorio/roundpool/pkg/observability/tracing"
)

// AppConfig is the demo configuration, loaded from -config and ROUNDPOOL_* variables
type AppConfig struct {
	Pool    PoolConfig     `yaml:"pool" json:"pool"`
	Log     LogConfig      `yaml:"log" json:"log"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing tracing.Config `yaml:"tracing" json:"tracing"`
}

type PoolConfig struct {
	Name           string        `yaml:"name" json:"name"`
	Workers        int           `yaml:"workers" json:"workers"`
	StallThreshold time.Duration `yaml:"stall_threshold" json:"stall_threshold"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	// Hold keeps serving after the demo rounds until SIGINT/SIGTERM
	Hold bool `yaml:"hold" json:"hold"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Pool: PoolConfig{
			Name:           "demo",
			Workers:        2,
			StallThreshold: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

func loadConfig(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	if err := config.LoadWithEnv(path, config.DefaultEnvPrefix, cfg); err != nil {
		return nil, err
	}

	validators := []config.Validator{
		config.RequiredFields("Pool.Name"),
		config.RangeValidator("Pool.Workers", 1, 4096),
		config.RangeValidator("Pool.StallThreshold", 0, 3600),
		config.OneOfValidator("Log.Level", "debug", "info", "warn", "error"),
		config.OneOfValidator("Log.Format", "text", "json"),
		config.OneOfValidator("Tracing.Exporter", "stdout", "zipkin", "none"),
		config.RangeValidator("Tracing.SampleRatio", 0, 1),
	}
	if cfg.Metrics.Enabled {
		validators = append(validators, config.RequiredFields("Metrics.Addr"))
	}
	if err := config.Validate(cfg, validators...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
