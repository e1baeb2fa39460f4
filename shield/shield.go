// Package shield provides the HTTP security middleware of the lplens API:
// security headers, HEAD handling, request body caps, request tracing and
// per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack() {
//	    r.Use(mw)
//	}
//	rl := shield.NewRateLimiter(map[string]shield.RateLimitConfig{"analyze": {MaxRequests: 5, Window: time.Minute}})
//	r.With(rl.Limit("analyze")).Post("/api/lp/{id}/analyze", h)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for a JSON API:
// HeadToGet → SecurityHeaders → MaxBody(64 KiB) → TraceID.
func DefaultAPIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(64 * 1024),
		TraceID,
	}
}
