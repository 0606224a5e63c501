package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/httpx"
)

// customerLimiter hands every customer a token bucket of limit attempts refilled over window.
type customerLimiter struct {
	every rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*customerBucket
}

type customerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCustomerLimiter(limit int, window time.Duration, clock func() time.Time) *customerLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &customerLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		clock:   clock,
		buckets: make(map[string]*customerBucket),
	}
}

// reserve takes one attempt for key. It returns zero when allowed, otherwise how long until the
// next attempt would be.
func (l *customerLimiter) reserve(key string) time.Duration {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		l.evictIdleLocked(now)
		bucket = &customerBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return delay
	}
	return 0
}

// evictIdleLocked drops buckets untouched for a whole window; they would be full again anyway.
func (l *customerLimiter) evictIdleLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// rateLimitCustomers answers 429 with Retry-After once a customer exhausts their attempts.
// It must run after authentication.
func rateLimitCustomers(limiter *customerLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if identity, ok := auth.IdentityFromContext(r.Context()); ok {
				key = identity.UID
			}
			if wait := limiter.reserve(key); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many checkout attempts; retry later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
