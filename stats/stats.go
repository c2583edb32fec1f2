// Package stats records allow/deny accounting for observability.
//
// Stats are write-only from the limiter's point of view: nothing here is
// ever consulted when making an admission decision.
package stats

import (
	"context"
	"sync"
	"time"
)

// Event describes the outcome of a single admission check.
type Event struct {
	// Key is the identifier the request was accounted against.
	Key string
	// LimiterKey names the limiter instance that made the decision.
	LimiterKey string
	Allowed    bool
	Method     string
	Path       string
	At         time.Time
}

// Store is a sink for admission outcomes.
type Store interface {
	Record(ctx context.Context, ev Event) error
}

// Counters aggregates outcomes.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStore is an in-process Store. Useful for tests, development, and the
// demo server's /stats endpoint. It does not expire anything.
type MemoryStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTrackKeys enables per-identifier counters. Off by default to keep
// memory bounded under high key cardinality.
func WithTrackKeys(track bool) MemoryOption {
	return func(s *MemoryStore) { s.trackKeys = track }
}

// NewMemoryStore creates an empty in-process stats store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	bump := func(c *Counters) {
		if ev.Allowed {
			c.Allowed++
		} else {
			c.Denied++
		}
	}

	bump(&s.total)

	c := s.byRoute[route]
	bump(&c)
	s.byRoute[route] = c

	if s.trackKeys && ev.Key != "" {
		k := s.byKey[ev.Key]
		bump(&k)
		s.byKey[ev.Key] = k
	}
	return nil
}

// Total returns the aggregate counters.
func (s *MemoryStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute returns a copy of the per-route counters.
func (s *MemoryStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

// ByKey returns a copy of the per-identifier counters.
// Empty unless WithTrackKeys was enabled.
func (s *MemoryStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
