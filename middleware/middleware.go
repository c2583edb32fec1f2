// Package middleware wraps HTTP handlers with admission control.
package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/SxyzJsnx/ratelimit-go/config"
	"github.com/SxyzJsnx/ratelimit-go/metrics"
	"github.com/SxyzJsnx/ratelimit-go/stats"
	"github.com/SxyzJsnx/ratelimit-go/types"
)

// denialPayload is the body written on rejected requests.
type denialPayload struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	// RemainingTime is the remaining cooldown in whole seconds, rounded up.
	RemainingTime int `json:"remainingTime"`
}

// RateLimitMiddleware applies a limiter to incoming HTTP requests.
type RateLimitMiddleware struct {
	limiter    types.Limiter
	limiterKey string

	statusCode int
	message    string
	keyFn      types.KeyFunc
	skipFn     types.SkipFunc

	metrics *metrics.RateLimitMetrics
	stats   stats.Store
}

// Option configures a RateLimitMiddleware.
type Option func(*RateLimitMiddleware)

// WithStatusCode overrides the HTTP status attached to denial responses.
func WithStatusCode(code int) Option {
	return func(m *RateLimitMiddleware) { m.statusCode = code }
}

// WithMessage overrides the message echoed back on denial responses.
func WithMessage(msg string) Option {
	return func(m *RateLimitMiddleware) { m.message = msg }
}

// WithKeyFunc overrides how the accounted identity is derived from a request.
func WithKeyFunc(fn types.KeyFunc) Option {
	return func(m *RateLimitMiddleware) { m.keyFn = fn }
}

// WithSkipFunc sets the bypass predicate. Exempt requests are passed through
// without consuming a window slot or touching cooldown state.
func WithSkipFunc(fn types.SkipFunc) Option {
	return func(m *RateLimitMiddleware) { m.skipFn = fn }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *metrics.RateLimitMetrics) Option {
	return func(mw *RateLimitMiddleware) { mw.metrics = m }
}

// WithStats attaches an accounting sink for allow/deny outcomes.
func WithStats(s stats.Store) Option {
	return func(m *RateLimitMiddleware) { m.stats = s }
}

// NewRateLimitMiddleware creates a middleware for the given limiter.
// limiterKey names the limiter instance in logs, metrics, and stats.
func NewRateLimitMiddleware(limiter types.Limiter, limiterKey string, opts ...Option) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		limiter:    limiter,
		limiterKey: limiterKey,
		statusCode: config.DefaultStatusCode,
		message:    config.DefaultMessage,
		keyFn:      ClientIP,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps next with admission control.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipFn != nil && m.skipFn(r) {
			// Bypassed traffic is invisible to the accounting model.
			if m.metrics != nil {
				m.metrics.RecordSkipped(m.limiterKey)
			}
			next.ServeHTTP(w, r)
			return
		}

		identifier := m.keyFn(r)
		if identifier == "" {
			log.Warn().
				Str("limiter_key", m.limiterKey).
				Str("remote_addr", r.RemoteAddr).
				Msg("Middleware: Could not derive identifier, rejecting request")
			if m.metrics != nil {
				m.metrics.RecordError(m.limiterKey)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		decision, err := m.limiter.Allow(r.Context(), identifier)
		if err != nil {
			log.Error().Err(err).
				Str("limiter_key", m.limiterKey).
				Str("identifier", identifier).
				Msg("Middleware: Admission check failed, rejecting request")
			if m.metrics != nil {
				m.metrics.RecordError(m.limiterKey)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if m.metrics != nil {
			m.metrics.RecordRequest(m.limiterKey, decision.Allowed)
		}
		m.recordStats(r, identifier, decision.Allowed)

		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		m.writeDenial(w, identifier, decision)
	})
}

// Handle wraps an http.HandlerFunc, mirroring Handler for mux-style routing.
func (m *RateLimitMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return m.Handler(next).ServeHTTP
}

func (m *RateLimitMiddleware) recordStats(r *http.Request, identifier string, allowed bool) {
	if m.stats == nil {
		return
	}
	err := m.stats.Record(r.Context(), stats.Event{
		Key:        identifier,
		LimiterKey: m.limiterKey,
		Allowed:    allowed,
		Method:     r.Method,
		Path:       r.URL.Path,
	})
	if err != nil {
		// Accounting is best effort; never let it affect the response.
		log.Warn().Err(err).
			Str("limiter_key", m.limiterKey).
			Msg("Middleware: Failed to record stats event")
	}
}

func (m *RateLimitMiddleware) writeDenial(w http.ResponseWriter, identifier string, decision types.Decision) {
	secs := decision.RetryAfterSeconds()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("X-RateLimit-Key", identifier)
	w.WriteHeader(m.statusCode)

	if err := json.NewEncoder(w).Encode(denialPayload{
		Status:        m.statusCode,
		Message:       m.message,
		RemainingTime: secs,
	}); err != nil {
		log.Warn().Err(err).
			Str("limiter_key", m.limiterKey).
			Msg("Middleware: Failed to write denial body")
	}

	log.Debug().
		Str("limiter_key", m.limiterKey).
		Str("identifier", identifier).
		Int("retry_after_seconds", secs).
		Msg("Middleware: Request rate limited")
}
