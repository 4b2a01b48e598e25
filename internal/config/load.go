package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TOKOVA_"

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then TOKOVA_* environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// envReader collects the first malformed value so overrides can be applied
// in one straight pass.
type envReader struct {
	err error
}

func (e *envReader) setString(name string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		return
	}
	*dst = n
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		return
	}
	*dst = d
}

func (e *envReader) setBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func loadFromEnvironment(config *Config) error {
	env := &envReader{}

	// Server
	env.setString("HOST", &config.Server.Host)
	env.setInt("PORT", &config.Server.Port)
	env.setDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	env.setDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	env.setDuration("SHUTDOWN_TIMEOUT", &config.Server.ShutdownTimeout)
	env.setBool("ADMIN_ENABLED", &config.Server.AdminEnabled)

	// Limiter
	env.setString("LIMITER_NAME", &config.Limiter.Name)
	env.setInt("LIMIT", &config.Limiter.Limit)
	env.setDuration("INTERVAL", &config.Limiter.Interval)
	env.setInt("TOKENS_PER_INTERVAL", &config.Limiter.TokensPerInterval)
	env.setString("REFILL_CRON", &config.Limiter.RefillCron)
	env.setInt("COST", &config.Limiter.Cost)

	// Persistence
	env.setString("PERSISTENCE_BACKEND", &config.Persistence.Backend)
	env.setString("PERSISTENCE_DIR", &config.Persistence.Dir)
	env.setBool("REVIVE", &config.Persistence.Revive)
	env.setBool("REVIVE_FROM_LATEST", &config.Persistence.ReviveFromLatest)
	env.setString("SNAPSHOT_KEY", &config.Persistence.SnapshotKey)
	env.setDuration("PERSISTENCE_TIMEOUT", &config.Persistence.Timeout)
	env.setString("REDIS_ADDR", &config.Persistence.Redis.Addr)
	env.setString("REDIS_PASSWORD", &config.Persistence.Redis.Password)
	env.setInt("REDIS_DB", &config.Persistence.Redis.DB)
	env.setString("REDIS_PREFIX", &config.Persistence.Redis.Prefix)
	env.setDuration("REDIS_TTL", &config.Persistence.Redis.TTL)

	// Logging
	env.setString("LOG_LEVEL", &config.Logging.Level)
	env.setString("LOG_FORMAT", &config.Logging.Format)

	// Metrics
	env.setBool("METRICS_ENABLED", &config.Metrics.Enabled)
	env.setString("METRICS_PATH", &config.Metrics.Path)
	env.setString("METRICS_NAMESPACE", &config.Metrics.Namespace)

	return env.err
}
