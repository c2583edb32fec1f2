package api

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SxyzJsnx/ratelimit-go/config"
	"github.com/SxyzJsnx/ratelimit-go/internal/slidingblock"
	"github.com/SxyzJsnx/ratelimit-go/types"
)

// Hooks carries optional callbacks wired into limiters at construction.
type Hooks struct {
	// OnBlocked fires once each time an identifier enters cooldown.
	OnBlocked func(limiterKey, identifier string, until time.Time)
}

// AlgorithmFunc creates a limiter instance from its configuration.
type AlgorithmFunc func(cfg config.LimiterConfig, hooks Hooks) (types.Limiter, error)

var (
	registryMu sync.RWMutex
	registry   = map[config.AlgorithmType]AlgorithmFunc{
		config.SlidingBlock: newSlidingBlock,
	}
)

// Register adds an algorithm to the registry. Registering a name twice
// panics; that is always a programmer error.
func Register(name config.AlgorithmType, fn AlgorithmFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("api: algorithm %q registered twice", name))
	}
	registry[name] = fn
}

// NewLimiter creates a limiter for a normalized, validated configuration.
// Unknown algorithm names fail explicitly rather than yielding a limiter
// that silently never checks anything.
func NewLimiter(cfg config.LimiterConfig, hooks Hooks) (types.Limiter, error) {
	registryMu.RLock()
	fn, ok := registry[cfg.Algorithm]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm type '%s' for key '%s' (known: %v)",
			cfg.Algorithm, cfg.Key, algorithmNames())
	}
	return fn(cfg, hooks)
}

func algorithmNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func newSlidingBlock(cfg config.LimiterConfig, hooks Hooks) (types.Limiter, error) {
	opts := []slidingblock.Option{
		slidingblock.WithOnBlocked(func(identifier string, until time.Time) {
			log.Warn().
				Str("limiter_key", cfg.Key).
				Str("identifier", identifier).
				Time("blocked_until", until).
				Msg("Limiter: Identifier entered cooldown")
			if hooks.OnBlocked != nil {
				hooks.OnBlocked(cfg.Key, identifier, until)
			}
		}),
	}
	if cfg.SweepIntervalMs > 0 {
		opts = append(opts, slidingblock.WithSweepInterval(cfg.SweepInterval()))
	}
	return slidingblock.NewLimiter(cfg.Key, cfg.Max, cfg.Window(), cfg.Cooldown(), opts...), nil
}
