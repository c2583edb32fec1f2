// Package types defines common types and interfaces used throughout the rate limiter.
package types

import (
	"context"
	"net/http"
	"time"
)

// Decision is the outcome of an admission check for a single request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// RetryAfter is the remaining cooldown for a denied request.
	// Zero when the request is allowed.
	RetryAfter time.Duration
}

// Allow is the decision for an admitted request.
var Allow = Decision{Allowed: true}

// Deny builds a denial decision carrying the remaining cooldown.
func Deny(retryAfter time.Duration) Decision {
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// RetryAfterSeconds returns the remaining cooldown rounded up to whole
// seconds. A denied decision always reports at least 1 second so clients
// never receive a zero retry hint.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter is the interface that all admission-control algorithms must implement.
type Limiter interface {
	// Allow checks whether a request attributed to key may proceed.
	// It returns the decision and an error if the check could not be performed.
	Allow(ctx context.Context, key string) (Decision, error)
}

// KeyFunc derives the identity a request is accounted against.
// Implementations must be deterministic, side-effect free, and return a
// non-empty string for any request they are given.
type KeyFunc func(r *http.Request) string

// SkipFunc reports whether a request is exempt from limiting entirely.
// Exempt requests never touch limiter state.
type SkipFunc func(r *http.Request) bool
