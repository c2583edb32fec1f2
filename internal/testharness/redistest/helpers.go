// Package redistest provides helpers for Redis-backed integration tests.
package redistest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// GetRedisAddress returns the Redis address, defaulting to "localhost:6379".
// REDIS_ADDR overrides it; in CI the conventional service name is used.
func GetRedisAddress() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "redis:6379"
	}
	return "localhost:6379"
}

// SetupRedisClient initializes and returns a Redis client for integration
// tests, failing the test if Redis is unreachable.
func SetupRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := GetRedisAddress()
	t.Logf("Connecting to Redis for integration tests at %s", addr)

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Fatalf("Failed to connect to Redis at %s: %v. Ensure Redis is running and accessible.", addr, err)
	}
	return client
}

// CleanupKeys deletes every key under the given prefix.
func CleanupKeys(t *testing.T, client *redis.Client, prefix string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 50).Result()
		if err != nil {
			t.Fatalf("Failed to SCAN for keys with prefix '%s': %v", prefix, err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				t.Errorf("Failed to DEL keys during cleanup: %v", err)
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
