package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP is the default key derivation: the client's network origin.
// It checks X-Forwarded-For and X-Real-IP before falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// HeaderKey derives the identity from a request header, falling back to
// ClientIP when the header is absent or blank.
func HeaderKey(header string) func(r *http.Request) string {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return ClientIP(r)
	}
}
