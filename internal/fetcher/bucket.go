package fetcher

import (
	"math"
	"sync"
	"time"
)

// domainState tracks the token bucket, backoff window, and counters for one
// domain. All domain state is mutated under the limiter's single lock; this
// is the documented hot path if finer-grained locking is ever needed.
type domainState struct {
	tokens     float64
	lastRefill time.Time

	backoffUntil    time.Time
	backoffAttempts int

	requests    int64
	rateLimited int64
	backoffs    int64
}

// Limiter applies per-domain token buckets and 429/503 backoff windows.
type Limiter struct {
	mu      sync.Mutex
	domains map[string]*domainState

	capacity   float64
	refillRate float64

	backoffBase       time.Duration
	backoffMultiplier float64
	backoffMax        time.Duration

	now func() time.Time // injectable for tests
}

// NewLimiter creates a limiter with the given bucket parameters.
func NewLimiter(capacity int, refillRate float64, base time.Duration, multiplier float64, max time.Duration) *Limiter {
	return &Limiter{
		domains:           map[string]*domainState{},
		capacity:          float64(capacity),
		refillRate:        refillRate,
		backoffBase:       base,
		backoffMultiplier: multiplier,
		backoffMax:        max,
		now:               time.Now,
	}
}

func (l *Limiter) state(domain string) *domainState {
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{tokens: l.capacity, lastRefill: l.now()}
		l.domains[domain] = st
	}
	return st
}

// refill credits tokens for the elapsed wall time. Caller holds the lock.
func (l *Limiter) refill(st *domainState) {
	now := l.now()
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed > 0 {
		st.tokens = math.Min(l.capacity, st.tokens+elapsed*l.refillRate)
		st.lastRefill = now
	}
}

// Acquire consumes one token for the domain. It returns (false, wait) when
// the domain is in a backoff window or the bucket is empty; callers decide
// whether to wait or fail.
func (l *Limiter) Acquire(domain string) (ok bool, retryAfter time.Duration, inBackoff bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(domain)
	now := l.now()

	if now.Before(st.backoffUntil) {
		st.backoffs++
		return false, st.backoffUntil.Sub(now), true
	}

	l.refill(st)
	if st.tokens < 1 {
		st.rateLimited++
		deficit := 1 - st.tokens
		return false, time.Duration(deficit / l.refillRate * float64(time.Second)), false
	}

	st.tokens--
	st.requests++
	return true, 0, false
}

// ReportStatus updates backoff state from a response status code. 429 and
// 503 open (or widen) the backoff window; any success resets the attempt
// counter.
func (l *Limiter) ReportStatus(domain string, statusCode int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(domain)
	switch {
	case statusCode == 429 || statusCode == 503:
		st.backoffAttempts++
		window := time.Duration(float64(l.backoffBase) * math.Pow(l.backoffMultiplier, float64(st.backoffAttempts-1)))
		if window > l.backoffMax {
			window = l.backoffMax
		}
		st.backoffUntil = l.now().Add(window)
	case statusCode >= 200 && statusCode < 400:
		st.backoffAttempts = 0
		st.backoffUntil = time.Time{}
	}
}

// DomainStats is a snapshot of one domain's counters.
type DomainStats struct {
	Requests    int64 `json:"requests"`
	RateLimited int64 `json:"rate_limited"`
	Backoffs    int64 `json:"backoffs"`
}

// Stats returns per-domain counters.
func (l *Limiter) Stats() map[string]DomainStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]DomainStats, len(l.domains))
	for domain, st := range l.domains {
		out[domain] = DomainStats{
			Requests:    st.requests,
			RateLimited: st.rateLimited,
			Backoffs:    st.backoffs,
		}
	}
	return out
}
