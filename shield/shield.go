// Package shield provides the HTTP middleware stack of the audit API:
// request tracing with a per-request logger, security headers for JSON
// responses and a request body limit.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds JSON request bodies. Snapshot requests are tiny.
const DefaultMaxBody = 64 * 1024

// DefaultAPIStack returns the middleware applied to every API route, ordered
// SecurityHeaders → MaxBody → TraceID.
func DefaultAPIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		TraceID,
	}
}
