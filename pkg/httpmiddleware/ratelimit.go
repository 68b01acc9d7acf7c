package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket for a request; the client IP by default.
	KeyFunc func(*http.Request) string
}

// window counts requests of one key in the current and previous windows.
// The effective count weights the previous window by its remaining overlap.
type window struct {
	start      time.Time
	curr, prev float64
}

// Limiter is a per-key sliding-window counter.
type Limiter struct {
	max  int
	size time.Duration

	mu   sync.Mutex
	keys map[string]*window
}

// NewLimiter allows max requests per key per size.
func NewLimiter(max int, size time.Duration) *Limiter {
	return &Limiter{max: max, size: size, keys: make(map[string]*window)}
}

// Allow records a request for key at now if it fits. It returns the
// requests left in the window and when the window resets.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.keys[key]
	if !found {
		w = &window{start: now.Truncate(l.size)}
		l.keys[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		w.start, w.prev, w.curr = now.Truncate(l.size), 0, 0
	case elapsed >= l.size:
		w.start, w.prev, w.curr = w.start.Add(l.size), w.curr, 0
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.size.Seconds()
	count := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if count >= float64(l.max) {
		return false, 0, reset
	}
	w.curr++
	return true, max(int(float64(l.max)-count-1), 0), reset
}

// Sweep drops keys idle for two windows.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.keys {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.keys, k)
		}
	}
}

func (l *Limiter) sweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

// RateLimit rejects requests over the limit with 429. Responses carry
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(NewLimiter(cfg.Max, cfg.Window), cfg.KeyFunc)
}

// RateLimitWithCleanup is RateLimit plus a goroutine sweeping idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go l.sweepEvery(ctx, 2*cfg.Window)
	return rateLimit(l, cfg.KeyFunc)
}

func rateLimit(l *Limiter, key func(*http.Request) string) Middleware {
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ok, remaining, reset := l.Allow(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := math.Ceil(max(reset.Sub(now), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
