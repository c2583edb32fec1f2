package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore records admission outcomes into Redis hashes so that counters
// from multiple process instances can be aggregated in one place. Admission
// state itself stays in-process; only the accounting is shared.
//
// Layout (prefix defaults to "ratelimit:stats"):
//
//	<prefix>:total                    cumulative allowed/denied fields
//	<prefix>:minute:<yyyymmddhhmm>    per-minute buckets, expired after TTL
//	<prefix>:route                    "<METHOD> <path>:allowed|denied" fields
//	<prefix>:key:<identifier>         per-identifier fields, expired after TTL
type RedisStore struct {
	rdb *redis.Client

	prefix string
	// ttl applies to time-bucketed and per-identifier keys only; the
	// cumulative total never expires.
	ttl       time.Duration
	trackKeys bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix overrides the Redis key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL overrides the expiry for bucketed and per-identifier keys.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithRedisTrackKeys enables per-identifier counters.
func WithRedisTrackKeys(track bool) RedisOption {
	return func(s *RedisStore) { s.trackKeys = track }
}

// NewRedisStore creates a Redis-backed stats store on an existing client.
// The caller owns the client's lifecycle.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Store.
func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	route := strings.TrimSpace(ev.Method + " " + ev.Path)
	if route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys {
		if id := strings.TrimSpace(ev.Key); id != "" {
			idKey := s.prefix + ":key:" + id
			pipe.HIncrBy(ctx, idKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats event: %w", err)
	}
	return nil
}

// Total reads the cumulative counters back from Redis.
func (s *RedisStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read stats totals: %w", err)
	}
	var c Counters
	if c.Allowed, err = parseCount(vals["allowed"]); err != nil {
		return Counters{}, fmt.Errorf("parse allowed count: %w", err)
	}
	if c.Denied, err = parseCount(vals["denied"]); err != nil {
		return Counters{}, fmt.Errorf("parse denied count: %w", err)
	}
	return c, nil
}

// parseCount treats a missing hash field as zero.
func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
