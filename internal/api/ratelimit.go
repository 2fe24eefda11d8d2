package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sweepThreshold is the client count above which idle windows are dropped.
const sweepThreshold = 1024

// clientLimiter allows at most n requests to each client address within any
// sliding window of the given length.
type clientLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
	now     func() time.Time
}

// newClientLimiter returns nil, meaning unlimited, when n or window is not
// positive.
func newClientLimiter(n int, window time.Duration) *clientLimiter {
	if n <= 0 || window <= 0 {
		return nil
	}
	return &clientLimiter{
		limit:   n,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records a request for client when it fits in the window. A rejected
// request reports how long until the oldest request in the window expires.
func (l *clientLimiter) allow(client string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.clients) > sweepThreshold {
		for k, ts := range l.clients {
			if len(ts) == 0 || now.Sub(ts[len(ts)-1]) >= l.window {
				delete(l.clients, k)
			}
		}
	}

	ts := l.clients[client]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= l.limit {
		l.clients[client] = ts
		return false, ts[0].Add(l.window).Sub(now)
	}
	l.clients[client] = append(ts, now)
	return true, 0
}

// middleware rejects over-limit requests with 429 and calls onReject.
func (l *clientLimiter) middleware(onReject func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			ok, wait := l.allow(client)
			if !ok {
				onReject()
				zap.L().Info("api: explain rate limit exceeded", zap.String("client", client), zap.Duration("retry_after", wait))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
