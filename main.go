// Package main is the entry point for the rate limiter demo server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	ratelimiter "github.com/SxyzJsnx/ratelimit-go/api"
	"github.com/SxyzJsnx/ratelimit-go/metrics"
	"github.com/SxyzJsnx/ratelimit-go/middleware"
	"github.com/SxyzJsnx/ratelimit-go/stats"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	port := flag.Int("p", 8080, "Port to run the HTTP server on")
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	logLevelStr := flag.String("log-level", "info", "Logging level (trace, debug, info, warn, error, fatal, panic)")
	flag.Parse()

	logLevel, err := zerolog.ParseLevel(*logLevelStr)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", *logLevelStr).Msg("Invalid log level provided")
	}
	zerolog.SetGlobalLevel(logLevel)

	log.Info().Str("config_path", *configPath).Msg("Starting application initialization")

	rlMetrics := metrics.NewRateLimitMetrics(prometheus.DefaultRegisterer)

	runtime, closer, err := ratelimiter.NewLimitersFromConfigPath(*configPath, ratelimiter.Hooks{
		OnBlocked: func(limiterKey, identifier string, until time.Time) {
			rlMetrics.RecordCooldown(limiterKey)
		},
	})
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Application startup failed: Error initializing rate limiters from config")
	}
	defer closer.Close()

	apiMW, err := middlewareFor(runtime, rlMetrics, "api_rate_limit")
	if err != nil {
		log.Fatal().Err(err).Msg("Application startup failed")
	}
	loginMW, err := middlewareFor(runtime, rlMetrics, "user_login_rate_limit")
	if err != nil {
		log.Fatal().Err(err).Msg("Application startup failed")
	}

	r := chi.NewRouter()

	r.Get("/unlimited", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Unlimited! Let's Go!")
	})

	r.Group(func(r chi.Router) {
		r.Use(apiMW)
		r.Get("/limited", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Limited, don't over use me!")
		})
		// Exempt through the limiter's skip rule: probes consume no window slot.
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(loginMW)
		r.Post("/login", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Login attempt processed!")
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", statsHandler(runtime.Stats))

	addr := fmt.Sprintf(":%d", *port)
	log.Info().Str("address", addr).Msg("Starting HTTP server")
	log.Fatal().Err(http.ListenAndServe(addr, r)).Str("address", addr).Msg("HTTP server stopped")
}

// middlewareFor builds the named limiter's HTTP adapter, wired to metrics,
// stats, and a bypass rule for the health endpoint.
func middlewareFor(rt *ratelimiter.Runtime, m *metrics.RateLimitMetrics, key string) (func(http.Handler) http.Handler, error) {
	limiter, ok := rt.Limiters[key]
	if !ok {
		return nil, fmt.Errorf("rate limiter key '%s' not found in config", key)
	}
	cfg, ok := rt.Configs[key]
	if !ok {
		return nil, fmt.Errorf("rate limiter config '%s' not found", key)
	}

	mw := middleware.NewRateLimitMiddleware(limiter, key,
		middleware.WithStatusCode(cfg.StatusCode),
		middleware.WithMessage(cfg.Message),
		middleware.WithMetrics(m),
		middleware.WithStats(rt.Stats),
		middleware.WithSkipFunc(func(r *http.Request) bool {
			return r.URL.Path == "/healthz"
		}),
	)

	adapter, err := middleware.NewAdapter("chi", mw)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// statsHandler serves a JSON snapshot of the in-memory stats store.
func statsHandler(store stats.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mem, ok := store.(*stats.MemoryStore)
		if !ok {
			http.Error(w, "stats snapshot only available for the memory backend", http.StatusNotImplemented)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"total":    mem.Total(),
			"by_route": mem.ByRoute(),
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to write stats snapshot")
		}
	}
}
