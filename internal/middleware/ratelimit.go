package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig defines the rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window.
	// Must be > 0.
	RequestsPerWindow int
	// WindowDuration is the time window for the rate limit.
	// Must be > 0.
	WindowDuration time.Duration
}

// Validate checks that the RateLimitConfig has valid values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultWriteLimit returns the default limit for score and hunch writes
// (60 requests per minute per user).
func DefaultWriteLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute}
}

// RateLimitStore defines the interface for rate limit state storage.
type RateLimitStore interface {
	// Allow counts a request against key. It reports whether the request is
	// allowed, how many requests remain in the window and the seconds until
	// the window resets when blocked.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int)
}

// bucket represents a rate limit bucket for a single key.
type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore implements RateLimitStore with a fixed window counter
// per key. Thread-safe for concurrent access.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates a new in-memory rate limit store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, exists := s.buckets[key]
	if !exists || now.After(b.windowEnd) {
		s.buckets[key] = &bucket{count: 1, windowEnd: now.Add(config.WindowDuration)}
		return true, config.RequestsPerWindow - 1, 0
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return true, config.RequestsPerWindow - b.count, 0
	}

	return false, 0, retrySeconds(b.windowEnd.Sub(now))
}

// Cleanup removes expired buckets. Call it periodically at 2-5x the longest
// configured WindowDuration.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// RedisRateLimitStore implements RateLimitStore on a shared Redis instance so
// every API replica enforces the same windows. Redis errors fail open.
type RedisRateLimitStore struct {
	client  redis.UniversalClient
	prefix  string
	metrics *Metrics
	logger  *slog.Logger
}

// RedisStoreOption configures a RedisRateLimitStore.
type RedisStoreOption func(*RedisRateLimitStore)

// WithRedisMetrics counts fail-open events.
func WithRedisMetrics(m *Metrics) RedisStoreOption {
	return func(s *RedisRateLimitStore) { s.metrics = m }
}

// WithRedisLogger sets the logger for fail-open events.
func WithRedisLogger(l *slog.Logger) RedisStoreOption {
	return func(s *RedisRateLimitStore) { s.logger = l }
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisRateLimitStore {
	s := &RedisRateLimitStore{
		client: client,
		prefix: "hunchrank:ratelimit:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow implements RateLimitStore. The window starts with the first request
// for the key and expires with the key's TTL.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	redisKey := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		s.logger.WarnContext(ctx, "rate limit store unavailable, allowing request", "error", err)
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}

	wait := ttl.Val()
	if wait <= 0 {
		wait = config.WindowDuration
	}
	return false, 0, retrySeconds(wait)
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns a KeyFunc that uses the client's IP address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// UserKeyFunc returns a KeyFunc that uses the authenticated user ID if
// available, falling back to IP address.
func UserKeyFunc() KeyFunc {
	ipFunc := IPKeyFunc()
	return func(r *http.Request) string {
		if id := GetUserID(r.Context()); id != "" {
			return "user:" + id
		}
		return "ip:" + ipFunc(r)
	}
}

// RateLimiter is a middleware that limits request rates.
// It returns HTTP 429 Too Many Requests when the limit is exceeded.
// metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			keyType, _, _ := strings.Cut(key, ":")
			endpoint := normalizePath(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(endpoint, keyType)
			}

			allowed, remaining, retryAfter := store.Allow(r.Context(), key, config)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(endpoint, keyType)
				}
				UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				resetTime := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
