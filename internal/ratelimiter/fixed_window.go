package ratelimiter

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// FixedWindowRateLimiter allows limit requests per key in each window. Windows
// start at a key's first request and are reset lazily, so idle keys are
// dropped by Prune instead of per-key timers.
type FixedWindowRateLimiter struct {
	sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(limit int, w time.Duration) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  w,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed and, when it may not, how long until
// its window resets.
func (rl *FixedWindowRateLimiter) Allow(key string) (bool, time.Duration) {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.clients[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count < rl.limit {
		w.count++
		return true, 0
	}
	return false, w.start.Add(rl.window).Sub(now)
}

// Prune forgets keys whose window has expired.
func (rl *FixedWindowRateLimiter) Prune() {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	for key, w := range rl.clients {
		if now.Sub(w.start) >= rl.window {
			delete(rl.clients, key)
		}
	}
}
