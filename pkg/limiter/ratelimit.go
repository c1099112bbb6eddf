package limiter

import (
	"sync"
	"time"
)

var loopback = map[string]struct{}{
	"127.0.0.1":        {},
	"::1":              {},
	"::ffff:127.0.0.1": {},
}

func IsLoopback(ip string) bool {
	_, ok := loopback[ip]
	return ok
}

// RateLimiter enforces a minimum spacing between allowed requests from the
// same address. Entries live for the lifetime of the process.
type RateLimiter struct {
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastAllowed map[string]time.Time
}

// NewRateLimiter creates a limiter; a spacing below one second is raised to
// one second.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval < time.Second {
		minInterval = time.Second
	}
	return &RateLimiter{
		minInterval: minInterval,
		now:         time.Now,
		lastAllowed: make(map[string]time.Time),
	}
}

// Allow reports whether ip may proceed and, if so, records the time. Loopback
// addresses are always allowed and never recorded.
func (l *RateLimiter) Allow(ip string) bool {
	if IsLoopback(ip) {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastAllowed[ip]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.lastAllowed[ip] = now
	return true
}

func (l *RateLimiter) MinInterval() time.Duration {
	return l.minInterval
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastAllowed)
}
