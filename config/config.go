// Package config holds the YAML configuration surface for the rate limiter.
package config

import (
	"fmt"
	"time"
)

// AlgorithmType represents the type of admission-control algorithm.
type AlgorithmType string

const (
	// SlidingBlock is a sliding-window log with a hard cooldown once the
	// window count reaches the configured maximum.
	SlidingBlock AlgorithmType = "sliding_block"
)

// StatsBackendType selects where allow/deny accounting is recorded.
type StatsBackendType string

const (
	StatsMemory StatsBackendType = "memory"
	StatsRedis  StatsBackendType = "redis"
)

// Defaults applied by Normalize when a field is left unset.
const (
	DefaultMax        = 100
	DefaultWindowMs   = 60_000
	DefaultCooldownMs = 60_000
	DefaultStatusCode = 429
	DefaultMessage    = "Rate limit exceeded. Please try again later."
)

// LimiterConfig holds the configuration for a single rate limiter instance.
type LimiterConfig struct {
	Key       string        `yaml:"key"`
	Algorithm AlgorithmType `yaml:"algorithm"`

	// Max requests permitted per key per window before blocking.
	Max int `yaml:"max"`
	// WindowMs is the rolling window length in milliseconds.
	WindowMs int64 `yaml:"window_ms"`
	// CooldownMs is the hard-block duration once Max is reached.
	CooldownMs int64 `yaml:"cooldown_ms"`

	// Message is echoed back on denial responses.
	Message string `yaml:"message,omitempty"`
	// StatusCode is attached to denial responses.
	StatusCode int `yaml:"status_code,omitempty"`

	// SweepIntervalMs controls how often idle keys are evicted from the
	// store. Zero disables the background sweep.
	SweepIntervalMs int64 `yaml:"sweep_interval_ms,omitempty"`
}

// StatsConfig selects the accounting sink shared by all limiters.
type StatsConfig struct {
	Backend     StatsBackendType    `yaml:"backend"`
	RedisParams *RedisBackendConfig `yaml:"redis_params,omitempty"`
}

// RedisBackendConfig holds connection parameters for the Redis stats sink.
type RedisBackendConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// ConfigFile represents the top-level structure of the configuration file.
type ConfigFile struct {
	Limiters []LimiterConfig `yaml:"limiters"`
	Stats    *StatsConfig    `yaml:"stats,omitempty"`
}

// Normalize fills unset fields with their documented defaults.
func (c *LimiterConfig) Normalize() {
	if c.Algorithm == "" {
		c.Algorithm = SlidingBlock
	}
	if c.Max == 0 {
		c.Max = DefaultMax
	}
	if c.WindowMs == 0 {
		c.WindowMs = DefaultWindowMs
	}
	if c.CooldownMs == 0 {
		c.CooldownMs = DefaultCooldownMs
	}
	if c.StatusCode == 0 {
		c.StatusCode = DefaultStatusCode
	}
	if c.Message == "" {
		c.Message = DefaultMessage
	}
}

// Validate rejects degenerate configurations at construction time rather
// than letting them surface as silent block-everything behavior at decision
// time. Call Normalize first.
func (c *LimiterConfig) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("limiter configuration missing 'key' field")
	}
	if c.Max <= 0 {
		return fmt.Errorf("limiter '%s': max must be positive, got %d", c.Key, c.Max)
	}
	if c.WindowMs <= 0 {
		return fmt.Errorf("limiter '%s': window_ms must be positive, got %d", c.Key, c.WindowMs)
	}
	if c.CooldownMs <= 0 {
		return fmt.Errorf("limiter '%s': cooldown_ms must be positive, got %d", c.Key, c.CooldownMs)
	}
	if c.StatusCode < 100 || c.StatusCode > 599 {
		return fmt.Errorf("limiter '%s': status_code %d is not a valid HTTP status", c.Key, c.StatusCode)
	}
	if c.SweepIntervalMs < 0 {
		return fmt.Errorf("limiter '%s': sweep_interval_ms must not be negative, got %d", c.Key, c.SweepIntervalMs)
	}
	return nil
}

// Window returns the rolling window length as a duration.
func (c *LimiterConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// Cooldown returns the hard-block duration as a duration.
func (c *LimiterConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// SweepInterval returns the eviction interval as a duration.
func (c *LimiterConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// Validate checks the stats sink selection.
func (s *StatsConfig) Validate() error {
	switch s.Backend {
	case StatsMemory:
		return nil
	case StatsRedis:
		if s.RedisParams == nil || s.RedisParams.Address == "" {
			return fmt.Errorf("stats backend 'redis' selected but redis_params.address is missing")
		}
		return nil
	default:
		return fmt.Errorf("unsupported stats backend '%s' (known: %s, %s)", s.Backend, StatsMemory, StatsRedis)
	}
}
