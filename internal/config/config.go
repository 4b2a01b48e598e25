// Package config loads the tokova server configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/vnykmshr/tokova/internal/logger"
	"github.com/vnykmshr/tokova/pkg/scheduling/scheduler"
)

// Persistence backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Limiter     LimiterConfig     `yaml:"limiter"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AdminEnabled exposes /clear.
	AdminEnabled bool `yaml:"admin_enabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LimiterConfig describes the bucket guarding the server.
type LimiterConfig struct {
	Name              string        `yaml:"name"`
	Limit             int           `yaml:"limit"`
	Interval          time.Duration `yaml:"interval"`
	TokensPerInterval int           `yaml:"tokens_per_interval"`
	RefillCron        string        `yaml:"refill_cron"`
	// Cost is the number of tokens one request consumes.
	Cost int `yaml:"cost"`
}

// PersistenceConfig selects where snapshots go.
type PersistenceConfig struct {
	Backend          string        `yaml:"backend"`
	Dir              string        `yaml:"dir"`
	Revive           bool          `yaml:"revive"`
	ReviveFromLatest bool          `yaml:"revive_from_latest"`
	SnapshotKey      string        `yaml:"snapshot_key"`
	Timeout          time.Duration `yaml:"timeout"`
	Redis            RedisConfig   `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing else is given. The
// limiter matches the classic demo: 500 tokens, 10 added every 10 seconds,
// 10 tokens per request.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AdminEnabled:    true,
		},
		Limiter: LimiterConfig{
			Name:              "default",
			Limit:             500,
			Interval:          10 * time.Second,
			TokensPerInterval: 10,
			Cost:              10,
		},
		Persistence: PersistenceConfig{
			Backend: BackendNone,
			Dir:     "tokova/persist/bucket-state",
			Timeout: 5 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tokova:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatJSON,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "tokova",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}
	if err := c.Persistence.Validate(); err != nil {
		return fmt.Errorf("invalid persistence config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

func (l *LimiterConfig) Validate() error {
	if l.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if l.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if l.TokensPerInterval < 0 {
		return errors.New("tokens_per_interval cannot be negative")
	}
	if l.Cost <= 0 {
		return errors.New("cost must be positive")
	}
	if l.Cost > l.Limit {
		return fmt.Errorf("cost %d exceeds limit %d, every request would be denied", l.Cost, l.Limit)
	}
	if l.RefillCron != "" {
		if err := scheduler.ValidateCron(l.RefillCron); err != nil {
			return err
		}
	}
	return nil
}

func (p *PersistenceConfig) Validate() error {
	switch p.Backend {
	case BackendNone:
		if p.Revive {
			return errors.New("revive requires a persistence backend")
		}
		return nil
	case BackendMemory:
	case BackendFile:
		if p.Dir == "" {
			return errors.New("dir is required for file persistence")
		}
	case BackendRedis:
		if p.Redis.Addr == "" {
			return errors.New("redis.addr is required for redis persistence")
		}
		if p.Redis.DB < 0 {
			return errors.New("redis.db cannot be negative")
		}
		if p.Redis.TTL < 0 {
			return errors.New("redis.ttl cannot be negative")
		}
	default:
		return fmt.Errorf("invalid persistence backend: %s", p.Backend)
	}

	if p.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if p.Revive && !p.ReviveFromLatest && p.SnapshotKey == "" {
		return errors.New("revive needs revive_from_latest or a snapshot_key")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	switch l.Format {
	case logger.FormatJSON, logger.FormatConsole:
		return nil
	default:
		return fmt.Errorf("invalid log format: %s", l.Format)
	}
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && (m.Path == "" || m.Path[0] != '/') {
		return errors.New("metrics path must start with /")
	}
	return nil
}
