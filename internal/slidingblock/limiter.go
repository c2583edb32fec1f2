// Package slidingblock provides an in-memory admission-control engine that
// counts requests per key over a sliding window and applies a hard cooldown
// once the window count reaches the configured maximum.
package slidingblock

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"

	"github.com/SxyzJsnx/ratelimit-go/types"
)

// entry is the per-key state. The window holds unix-millisecond timestamps
// of admitted requests still inside the rolling window, in arrival order.
// blockedUntil is zero while the key is not serving a cooldown.
type entry struct {
	window       deque.Deque[int64]
	blockedUntil int64
}

// Limiter implements the sliding-window-with-cooldown algorithm.
// All state lives in a single map owned by the Limiter; every access goes
// through Decide under one mutex, so the check-then-act sequence is atomic
// per key even under concurrent callers.
type Limiter struct {
	key      string
	max      int
	window   time.Duration
	cooldown time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	nowFunc    func() time.Time
	sweepEvery time.Duration
	onBlocked  func(identifier string, until time.Time)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock, used by tests to drive time deterministically.
func WithClock(nowFunc func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = nowFunc
	}
}

// WithSweepInterval sets how often the background sweeper evicts idle keys.
// Zero disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.sweepEvery = d
	}
}

// WithOnBlocked sets a callback fired exactly once each time a key enters
// cooldown. Repeated over-threshold requests for an already-blocked key do
// not fire it again. The callback runs outside the store lock.
func WithOnBlocked(fn func(identifier string, until time.Time)) Option {
	return func(l *Limiter) {
		l.onBlocked = fn
	}
}

// NewLimiter creates a sliding-block limiter.
// key names the limiter instance, max is the number of requests permitted
// per identifier per window, window is the rolling window length, and
// cooldown is the hard-block duration once max is reached.
func NewLimiter(key string, max int, window, cooldown time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		key:      key,
		max:      max,
		window:   window,
		cooldown: cooldown,
		entries:  make(map[string]*entry),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().
		Str("limiter_type", "SlidingBlock").
		Str("limiter_key", key).
		Int("max", max).
		Dur("window", window).
		Dur("cooldown", cooldown).
		Msg("Limiter: Initialized")
	return l
}

// Allow checks whether a request attributed to identifier may proceed.
func (l *Limiter) Allow(ctx context.Context, identifier string) (types.Decision, error) {
	select {
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).
			Str("limiter_type", "SlidingBlock").
			Str("limiter_key", l.key).
			Str("identifier", identifier).
			Msg("Limiter: Context cancelled during check")
		return types.Deny(0), ctx.Err()
	default:
	}

	return l.Decide(identifier, l.nowFunc()), nil
}

// Decide evaluates a single request for identifier at the given instant.
//
// The evaluation order is load-bearing: an active cooldown short-circuits
// before the window is touched, an elapsed cooldown wipes the key's state,
// pruning always precedes the threshold check, and the request that brings
// the window count to max is itself admitted — only a subsequent request
// observes the full window and trips the block.
func (l *Limiter) Decide(identifier string, now time.Time) types.Decision {
	nowMs := now.UnixMilli()

	l.mu.Lock()

	e := l.entries[identifier]
	if e != nil && e.blockedUntil != 0 {
		remaining := e.blockedUntil - nowMs
		if remaining > 0 {
			l.mu.Unlock()
			return types.Deny(time.Duration(remaining) * time.Millisecond)
		}
		// Cooldown elapsed: the key starts over with a clean slate.
		delete(l.entries, identifier)
		e = nil
	}

	if e == nil {
		e = &entry{}
		l.entries[identifier] = e
	}

	l.prune(e, nowMs)

	if e.window.Len() >= l.max {
		// Idempotent creation: a cooldown already in flight is never extended.
		blocked := false
		if e.blockedUntil == 0 {
			e.blockedUntil = nowMs + l.cooldown.Milliseconds()
			blocked = true
		}
		remaining := e.blockedUntil - nowMs
		until := time.UnixMilli(e.blockedUntil)
		l.mu.Unlock()
		if blocked && l.onBlocked != nil {
			l.onBlocked(identifier, until)
		}
		return types.Deny(time.Duration(remaining) * time.Millisecond)
	}

	e.window.PushBack(nowMs)
	l.mu.Unlock()
	return types.Allow
}

// prune drops every timestamp that has fallen out of the rolling window.
// Caller holds l.mu.
func (l *Limiter) prune(e *entry, nowMs int64) {
	windowMs := l.window.Milliseconds()
	for e.window.Len() > 0 && nowMs-e.window.Front() >= windowMs {
		e.window.PopFront()
	}
}

// Size reports the number of identifiers currently tracked in the store.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep evicts every identifier whose window is empty after pruning and
// whose cooldown, if any, has elapsed. It returns the number of evicted
// identifiers. Without sweeping the store only reclaims a key's memory on
// that key's next request, which grows unboundedly under churn of distinct,
// mostly-idle identifiers.
func (l *Limiter) Sweep() int {
	nowMs := l.nowFunc().UnixMilli()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, e := range l.entries {
		if e.blockedUntil != 0 && e.blockedUntil > nowMs {
			continue
		}
		l.prune(e, nowMs)
		if e.window.Len() == 0 {
			delete(l.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep on the configured interval until ctx is cancelled.
// It is a no-op when no sweep interval was configured.
func (l *Limiter) StartSweeper(ctx context.Context) {
	if l.sweepEvery <= 0 {
		return
	}

	ticker := time.NewTicker(l.sweepEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					log.Debug().
						Str("limiter_key", l.key).
						Int("evicted", n).
						Msg("Limiter: Swept idle identifiers")
				}
			}
		}
	}()
}
