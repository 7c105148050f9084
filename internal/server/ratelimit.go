package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitInfo is the state reported in x-ratelimit-* headers.
type RateLimitInfo struct {
	RequestsLimit     int
	RequestsRemaining int
	RequestsReset     time.Duration
}

// WriteRateLimitHeaders sets the x-ratelimit-*-requests headers.
func WriteRateLimitHeaders(h http.Header, rl RateLimitInfo) {
	if rl.RequestsLimit <= 0 {
		return
	}
	h.Set("x-ratelimit-limit-requests", strconv.Itoa(rl.RequestsLimit))
	h.Set("x-ratelimit-remaining-requests", strconv.Itoa(rl.RequestsRemaining))
	if rl.RequestsReset > 0 {
		h.Set("x-ratelimit-reset-requests", rl.RequestsReset.Round(time.Second).String())
	}
}

// UserLimiter is a token bucket per user. Registered users and anonymous
// callers get separate budgets of n messages per window.
type UserLimiter struct {
	registered int
	anonymous  int
	window     time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// NewUserLimiter creates a limiter. Non-positive budgets disable limiting
// for that class.
func NewUserLimiter(registered, anonymous int, window time.Duration) *UserLimiter {
	return &UserLimiter{
		registered: registered,
		anonymous:  anonymous,
		window:     window,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow consumes one message from key's budget.
func (l *UserLimiter) Allow(key string, registered bool) (bool, RateLimitInfo) {
	limit := l.anonymous
	if registered {
		limit = l.registered
	}
	if limit <= 0 || l.window <= 0 {
		return true, RateLimitInfo{}
	}

	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(limit)), limit),
			limit:   limit,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	info := RateLimitInfo{
		RequestsLimit:     limit,
		RequestsRemaining: int(math.Max(0, math.Floor(tokens))),
	}
	if tokens < 1 {
		perToken := l.window / time.Duration(limit)
		info.RequestsReset = time.Duration((1 - tokens) * float64(perToken))
	}
	return allowed, info
}

// Sweep drops buckets idle for longer than the window, which are full
// again by then. It returns how many were removed.
func (l *UserLimiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns how many users are tracked.
func (l *UserLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
