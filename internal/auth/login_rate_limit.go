package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"expense-tracker/internal/observability"
)

const limiterSweepEvery = 1024

// LoginRateLimiter caps login attempts per client address inside a sliding
// window. It sits in front of the login route and never reaches into the
// Service. The address comes from observability.ClientIP, which only
// reflects X-Forwarded-For when a trusted proxy sent it.
type LoginRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*attemptLog
	calls   int
	now     func() time.Time
}

// attemptLog keeps the attempt times of one client, oldest first.
type attemptLog struct {
	times []time.Time
}

func (a *attemptLog) trim(cutoff time.Time) {
	i := 0
	for i < len(a.times) && !a.times[i].After(cutoff) {
		i++
	}
	a.times = a.times[i:]
}

func NewLoginRateLimiter(limit int, window time.Duration) *LoginRateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*attemptLog),
		now:     time.Now,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				ErrorKind: "RATE_LIMITED",
				Message:   "too many login attempts",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records an attempt for client at now unless the window is full, in
// which case it reports how long until the oldest attempt expires.
func (l *LoginRateLimiter) allow(client string, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%limiterSweepEvery == 0 {
		l.sweep(cutoff)
	}

	log, ok := l.clients[client]
	if !ok {
		log = &attemptLog{}
		l.clients[client] = log
	}
	log.trim(cutoff)

	if len(log.times) >= l.limit {
		return false, max(log.times[0].Sub(cutoff), time.Second)
	}

	log.times = append(log.times, now)
	return true, 0
}

// sweep drops clients whose attempts have all left the window.
func (l *LoginRateLimiter) sweep(cutoff time.Time) {
	for client, log := range l.clients {
		log.trim(cutoff)
		if len(log.times) == 0 {
			delete(l.clients, client)
		}
	}
}
