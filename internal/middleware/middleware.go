// Package middleware holds the HTTP guards shared by the outreach endpoints.
package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-scheduler/internal/controller"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
)

const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not match key.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				controller.WriteDetail(w, r, http.StatusUnauthorized, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Limiter decides whether another request under key is allowed. When it is
// not, retryAfter says how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// fixedWindowScript counts a hit and starts the window on the first one.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter is a fixed-window counter shared by every server instance.
type RedisLimiter struct {
	Client   redis.UniversalClient
	Prefix   string
	Requests int
	Window   time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, requests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{Client: client, Prefix: "outreach:ratelimit:", Requests: requests, Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, l.Client, []string{l.Prefix + key}, l.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to run rate limit script")
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = l.Window
	}
	return count <= int64(l.Requests), ttl, nil
}

// RateLimit answers 429 once a client exceeds the limiter. Clients are keyed
// by IP. If the limiter itself fails the request is let through.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := limiter.Allow(r.Context(), ClientIP(r))
			if err != nil {
				logger.FromContextWithErr(r.Context(), err).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int((retryAfter + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				controller.WriteDetail(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Try again in "+strconv.Itoa(max(seconds, 1))+" seconds")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the request's remote host without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger puts a request-scoped logger in the context and logs each
// request once it completes.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			log := base.With(slog.String("method", r.Method), slog.String("path", r.URL.Path))

			next.ServeHTTP(rec, r.WithContext(logger.NewContext(r.Context(), log)))

			log.Info("request served",
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("client_ip", ClientIP(r)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
