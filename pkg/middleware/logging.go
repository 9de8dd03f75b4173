package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"meshup/pkg/logging"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// type for context keys
type loggerKeyType struct{}

var LoggerKey = loggerKeyType{}

// RequestLogger creates a middleware that logs requests and injects the logger.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLog := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			if id := chimw.GetReqID(r.Context()); id != "" {
				reqLog = reqLog.With(logging.RequestID(id))
			}
			ctx := context.WithValue(r.Context(), LoggerKey, reqLog)

			start := time.Now()
			reqLog.DebugContext(ctx, "request started")
			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))
			reqLog.InfoContext(ctx, "request finished",
				slog.Int("status", wrapped.statusCode),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
