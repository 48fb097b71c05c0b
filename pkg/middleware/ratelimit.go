package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LimiterStore hands out the limiter for a key. The in-process store suits a
// single instance; a shared store is needed once the service scales out.
type LimiterStore interface {
	Limiter(key string) *rate.Limiter
}

// MemoryLimiterStore keeps one token bucket per key. Buckets idle for longer
// than idleTTL are dropped on the next lookup.
type MemoryLimiterStore struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var _ LimiterStore = (*MemoryLimiterStore)(nil)

// NewMemoryLimiterStore creates a store allowing rps requests per second per
// key with the given burst.
func NewMemoryLimiterStore(rps float64, burst int) *MemoryLimiterStore {
	if burst < 1 {
		burst = 1
	}
	return &MemoryLimiterStore{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Limiter implements LimiterStore.
func (s *MemoryLimiterStore) Limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.idleTTL {
			delete(s.limiters, k)
		}
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len returns the number of tracked keys.
func (s *MemoryLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit rejects requests over the per-user rate with 429. Requests are
// keyed by user identity, falling back to the remote address.
func RateLimit(store LimiterStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(UserIDHeader)
			if key == "" {
				key = r.RemoteAddr
			}

			lim := store.Limiter(key)
			res := lim.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				if logger != nil {
					logger.Debug("Rate limit exceeded",
						zap.String("key", key),
						zap.String("path", r.URL.Path))
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
