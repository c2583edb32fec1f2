// Package api is the public facade for building rate limiters from
// configuration.
package api

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	apiinternal "github.com/SxyzJsnx/ratelimit-go/api/internal"
	"github.com/SxyzJsnx/ratelimit-go/config"
	"github.com/SxyzJsnx/ratelimit-go/stats"
	"github.com/SxyzJsnx/ratelimit-go/types"
)

// BackendClients holds initialized backend client instances.
type BackendClients struct {
	// RedisClient backs the optional Redis stats sink.
	RedisClient *redis.Client
}

// Runtime bundles everything built from a configuration file.
type Runtime struct {
	// Limiters maps limiter key to its instance.
	Limiters map[string]types.Limiter
	// Configs maps limiter key to its normalized configuration.
	Configs map[string]config.LimiterConfig
	// Stats is the configured accounting sink. Defaults to an in-memory
	// store when the config file selects no backend.
	Stats stats.Store
}

// sweeper is implemented by limiters with a background eviction loop.
type sweeper interface {
	StartSweeper(ctx context.Context)
}

// runtimeCloser stops sweeper goroutines and shuts down backend clients.
type runtimeCloser struct {
	cancel  context.CancelFunc
	clients BackendClients
}

// Close cancels background work and closes any backend clients.
func (c *runtimeCloser) Close() error {
	log.Info().Msg("API: Starting shutdown")
	c.cancel()

	var errs []error
	if c.clients.RedisClient != nil {
		if err := c.clients.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis client: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	log.Info().Msg("API: Shutdown complete")
	return nil
}

// NewLimitersFromConfigPath loads the config file, validates every limiter,
// initializes backend clients as needed, starts background sweepers, and
// returns the runtime together with an io.Closer that tears it all down.
func NewLimitersFromConfigPath(path string, hooks Hooks) (*Runtime, io.Closer, error) {
	cfgFile, err := apiinternal.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return NewLimitersFromConfig(cfgFile, hooks)
}

// NewLimitersFromConfig builds a runtime from an already-loaded configuration.
func NewLimitersFromConfig(cfgFile *config.ConfigFile, hooks Hooks) (*Runtime, io.Closer, error) {
	if len(cfgFile.Limiters) == 0 {
		return nil, nil, fmt.Errorf("no limiter configurations found")
	}

	// Validate everything up front: misconfiguration must fail here, not
	// surface as degenerate blocking behavior at decision time.
	for i := range cfgFile.Limiters {
		cfgFile.Limiters[i].Normalize()
		if err := cfgFile.Limiters[i].Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid limiter configuration: %w", err)
		}
	}
	if cfgFile.Stats != nil {
		if err := cfgFile.Stats.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid stats configuration: %w", err)
		}
	}

	statsStore, clients, err := newStatsStore(cfgFile.Stats)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	closer := &runtimeCloser{cancel: cancel, clients: clients}

	rt := &Runtime{
		Limiters: make(map[string]types.Limiter, len(cfgFile.Limiters)),
		Configs:  make(map[string]config.LimiterConfig, len(cfgFile.Limiters)),
		Stats:    statsStore,
	}

	for _, cfg := range cfgFile.Limiters {
		if _, dup := rt.Limiters[cfg.Key]; dup {
			closer.Close()
			return nil, nil, fmt.Errorf("duplicate limiter key '%s' in config", cfg.Key)
		}

		limiter, err := NewLimiter(cfg, hooks)
		if err != nil {
			closer.Close()
			return nil, nil, fmt.Errorf("limiter '%s': failed to create instance: %w", cfg.Key, err)
		}

		if s, ok := limiter.(sweeper); ok {
			s.StartSweeper(ctx)
		}

		rt.Limiters[cfg.Key] = limiter
		rt.Configs[cfg.Key] = cfg
		log.Info().
			Str("limiter_key", cfg.Key).
			Str("algorithm", string(cfg.Algorithm)).
			Msg("API: Limiter created")
	}

	log.Info().Int("count", len(rt.Limiters)).Msg("API: All rate limiters initialized")
	return rt, closer, nil
}

func newStatsStore(cfg *config.StatsConfig) (stats.Store, BackendClients, error) {
	if cfg == nil || cfg.Backend == config.StatsMemory {
		return stats.NewMemoryStore(), BackendClients{}, nil
	}

	// Validate already confirmed the backend is a known one.
	client, err := apiinternal.InitRedisClient(cfg.RedisParams)
	if err != nil {
		return nil, BackendClients{}, fmt.Errorf("failed to initialize Redis stats client: %w", err)
	}
	return stats.NewRedisStore(client), BackendClients{RedisClient: client}, nil
}
