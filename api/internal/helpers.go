// Package internal holds configuration-loading and backend-client helpers
// for the api facade.
package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/SxyzJsnx/ratelimit-go/config"
)

// LoadConfig reads and unmarshals the YAML config file.
func LoadConfig(path string) (*config.ConfigFile, error) {
	log.Debug().Str("config_path", path).Msg("Loading configuration")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg config.ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file %s: %w", path, err)
	}
	log.Debug().Str("config_path", path).Int("limiters", len(cfg.Limiters)).Msg("Configuration loaded")
	return &cfg, nil
}

// InitRedisClient initializes and pings a Redis client for the stats sink.
func InitRedisClient(params *config.RedisBackendConfig) (*redis.Client, error) {
	if params == nil {
		return nil, fmt.Errorf("redis stats backend selected but redis_params are missing in config")
	}
	log.Info().Str("address", params.Address).Int("db", params.DB).Msg("Initializing Redis client")
	client := redis.NewClient(&redis.Options{
		Addr:     params.Address,
		Password: params.Password,
		DB:       params.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		// Close on ping failure to avoid leaking the connection pool.
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", params.Address, err)
	}
	log.Info().Str("address", params.Address).Msg("Connected to Redis")
	return client, nil
}
