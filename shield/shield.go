// Package shield is the HTTP middleware stack in front of every route:
// request ids, access logging, response headers and HEAD support.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger, idgen.Default) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/carcatalog/idgen"
)

type contextKey string

// LoggerKey is the context key for the per-request logger.
const LoggerKey contextKey = "shield_logger"

// Stack returns the standard middleware in order: HeadToGet, RequestID,
// SecurityHeaders(APIHeaders()).
func Stack(logger *slog.Logger, newID idgen.Generator) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		RequestID(logger, newID),
		SecurityHeaders(APIHeaders()),
	}
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// HeadToGet serves HEAD through GET routes; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
