// Package middleware provides the HTTP middleware chain: request ids,
// structured request logging, rate limiting, and the signature admission
// gate.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apierrors "licensor/internal/errors"
	"licensor/internal/infrastructure"
)

type contextKey string

// requestIDKey carries the request id through the context.
const requestIDKey contextKey = "request-id"

// RequestID assigns every request a unique id, honoring an inbound
// X-Request-ID header. It should be the first middleware in the chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = infrastructure.WithTraceID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetReqID retrieves the request id from the context.
func GetReqID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// StructuredLogger logs request start and completion with slog. It should
// come after RequestID.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			logger.InfoContext(ctx, "request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(ctx, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// RateLimit bounds the whole service to rps requests per second with the
// given burst.
func RateLimit(rps float64, burst int) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				render.Render(w, r, apierrors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
