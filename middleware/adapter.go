package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Adapter plugs a RateLimitMiddleware into a specific HTTP stack.
type Adapter func(next http.Handler) http.Handler

// AdapterFunc builds an Adapter from a configured middleware.
type AdapterFunc func(m *RateLimitMiddleware) Adapter

var (
	adaptersMu sync.RWMutex
	adapters   = map[string]AdapterFunc{
		// "http" serves the standard library mux; "chi" is identical in
		// shape but registered separately so configuration can name the
		// stack it targets.
		"http": func(m *RateLimitMiddleware) Adapter { return m.Handler },
		"chi":  func(m *RateLimitMiddleware) Adapter { return m.Handler },
	}
)

// RegisterAdapter adds a named adapter. Registering a name twice panics,
// matching the prometheus registry convention for programmer errors.
func RegisterAdapter(name string, fn AdapterFunc) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	if _, dup := adapters[name]; dup {
		panic(fmt.Sprintf("middleware: adapter %q registered twice", name))
	}
	adapters[name] = fn
}

// NewAdapter looks up a named adapter and binds it to m.
// Unknown names fail explicitly: a silently missing middleware would mean
// requests are never checked at all.
func NewAdapter(name string, m *RateLimitMiddleware) (Adapter, error) {
	adaptersMu.RLock()
	fn, ok := adapters[name]
	adaptersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown middleware adapter '%s' (known: %v)", name, adapterNames())
	}
	return fn(m), nil
}

func adapterNames() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
