package compose

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter hands out a token-bucket limiter per client IP. Idle entries are
// pruned so the map does not grow without bound.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rps      rate.Limit
	burst    int
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const ipLimiterIdleTTL = 10 * time.Minute

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*ipEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// allow reports whether a request from ip may proceed now.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) > 64 {
			l.prune(now)
		}
		entry = &ipEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// prune removes entries idle longer than the TTL. Caller holds mu.
func (l *ipLimiter) prune(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > ipLimiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
}
