package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/cache"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestIDMiddleware ensures every request carries an id, generating one
// when the client did not send X-Request-ID.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs one line per request after it completes.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			requestID, _ := r.Context().Value(contextKeyRequestID).(string)
			logger.InfoContext(r.Context(), "http_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		})
	}
}

// RecoveryMiddleware converts panics into 500 responses.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("error", err),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					writeErrorBody(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware sets the standard hardening headers.
func SecurityHeadersMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(registry *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			// The matched pattern keeps metric cardinality bounded; raw
			// paths carry uuids.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			registry.RecordAPIRequest(r.Context(), float64(time.Since(start).Milliseconds()), r.Method, route, rec.status)
		})
	}
}

// TracingMiddleware opens a server span around each request.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", rec.status))
		})
	}
}

// RateLimiterMiddleware throttles API requests per caller. With a shared
// redis limiter it enforces a sliding one second window across instances;
// otherwise it falls back to an in-process token bucket.
type RateLimiterMiddleware struct {
	shared cache.RateLimiter
	local  *localRateLimiter
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiterMiddleware(cfg config.RateLimitConfig, shared cache.RateLimiter, logger *slog.Logger) *RateLimiterMiddleware {
	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = 50
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = limit * 2
	}

	m := &RateLimiterMiddleware{
		shared: shared,
		limit:  limit,
		window: time.Second,
		logger: logger,
	}
	if shared == nil {
		m.local = newLocalRateLimiter(rate.Limit(limit), burst)
	}
	return m
}

// Middleware enforces the limit on /api/ routes. Health and metrics
// endpoints are never throttled.
func (m *RateLimiterMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			key := callerKey(r)
			allowed, remaining := m.allow(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeAppError(w, apperrors.NewRateLimitError("rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimiterMiddleware) allow(ctx context.Context, key string) (bool, int) {
	if m.shared == nil {
		return m.local.allow(key)
	}

	allowed, err := m.shared.Allow(ctx, key, m.limit, m.window)
	if err != nil {
		// A broken limiter never blocks traffic.
		m.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return true, m.limit
	}
	if !allowed {
		return false, 0
	}

	remaining, err := m.shared.Remaining(ctx, key, m.limit, m.window)
	if err != nil {
		return true, 0
	}
	return true, remaining
}

// callerKey identifies the caller for rate limiting: the authenticated
// account when present, the client address otherwise.
func callerKey(r *http.Request) string {
	if accountID, ok := AccountIDFromContext(r.Context()); ok {
		return "account:" + accountID.String()
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// localRateLimiter keeps one token bucket per caller key.
type localRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLocalRateLimiter(rps rate.Limit, burst int) *localRateLimiter {
	return &localRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *localRateLimiter) allow(key string) (bool, int) {
	lim := l.limiter(key)
	allowed := lim.Allow()
	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

func (l *localRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.rps, l.burst)
	l.limiters[key] = lim
	return lim
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
