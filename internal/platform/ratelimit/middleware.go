package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"clubpay/pkg/platform/httputil"
)

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Limiter builds per-route middleware over a Store. Store errors fail open.
type Limiter struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Limiter)

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func NewLimiter(store Store, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PerClient limits requests to name by client IP. A zero limit disables it.
func (l *Limiter) PerClient(name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := name + ":" + clientIP(r)
			res, err := l.store.Allow(ctx, key, limit, window)
			if err != nil {
				l.logger.WarnContext(ctx, "rate limit check failed, allowing request",
					"limit_name", name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if !res.Allowed {
				l.metrics.IncDenied(name)
				retry := res.RetryAfter(l.now())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, ExceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
