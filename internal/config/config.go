// Package config loads, merges, and validates workerpoold configuration
// from defaults, environment variables, and CLI flags in a layered style:
// defaults -> environment -> flags, with a final Validate() pass.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// PoolConfig mirrors the Dispatcher's construction knobs.
type PoolConfig struct {
	Script           string
	WorkerBinary     string
	MinWorkers       int
	MaxWorkers       int
	MaxQueueSize     int // <0 means unbounded
	GradualScalingMs int
	RoundRobin       bool
	Concurrency      int
	MaxExec          int
	DebugPortStart   int
}

// AppConfig carries ambient application-level settings: name, log level,
// listen address, shutdown grace.
type AppConfig struct {
	Name            string
	LogLevel        string
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// Config is the full, composed configuration.
type Config struct {
	App  AppConfig
	Pool PoolConfig
}

// Defaults returns the baseline configuration before environment/flag
// overrides are layered on.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Name:            "workerpoold",
			LogLevel:        "info",
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Pool: PoolConfig{
			WorkerBinary:     "./worker",
			MinWorkers:       1,
			MaxWorkers:       4,
			MaxQueueSize:     -1,
			GradualScalingMs: 0,
			RoundRobin:       false,
			Concurrency:      1,
			MaxExec:          0,
			DebugPortStart:   9230,
		},
	}
}

// ApplyEnv layers environment-variable overrides over cfg, using an
// upper-snake-case, app-prefixed naming convention.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("WORKERPOOLD_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("WORKERPOOLD_LISTEN_ADDR"); v != "" {
		cfg.App.ListenAddr = v
	}
	if v, ok := envInt("WORKERPOOLD_MIN_WORKERS"); ok {
		cfg.Pool.MinWorkers = v
	}
	if v, ok := envInt("WORKERPOOLD_MAX_WORKERS"); ok {
		cfg.Pool.MaxWorkers = v
	}
	if v, ok := envInt("WORKERPOOLD_MAX_QUEUE_SIZE"); ok {
		cfg.Pool.MaxQueueSize = v
	}
	if v, ok := envInt("WORKERPOOLD_GRADUAL_SCALING_MS"); ok {
		cfg.Pool.GradualScalingMs = v
	}
	if v := os.Getenv("WORKERPOOLD_ROUND_ROBIN"); v != "" {
		cfg.Pool.RoundRobin = v == "1" || v == "true"
	}
	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the pool settings so CLI misconfiguration is reported
// before a Dispatcher is ever built. It is stricter than NewDispatcher:
// MaxWorkers 0 is rejected rather than defaulted, and any negative
// MinWorkers is rejected, including the pool.MinWorkersMax sentinel.
func (c Config) Validate() error {
	if c.Pool.MaxWorkers < 1 {
		return errors.Errorf("config: pool.max_workers must be >= 1, got %d", c.Pool.MaxWorkers)
	}
	if c.Pool.MinWorkers < 0 {
		return errors.Errorf("config: pool.min_workers must be >= 0, got %d", c.Pool.MinWorkers)
	}
	if c.Pool.GradualScalingMs < 0 {
		return errors.Errorf("config: pool.gradual_scaling_ms must be >= 0, got %d", c.Pool.GradualScalingMs)
	}
	if c.Pool.Concurrency < 0 {
		return errors.Errorf("config: pool.concurrency must be >= 0, got %d", c.Pool.Concurrency)
	}
	return nil
}
