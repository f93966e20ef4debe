package main

import (
	"time"
)

type pruner interface {
	Prune()
}

// pruneRateLimiterEvery drops expired rate limit windows so the limiter does
// not grow with every client it has ever seen.
func (app *application) pruneRateLimiterEvery(interval time.Duration) {
	p, ok := app.rateLimiter.(pruner)
	if !ok || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			p.Prune()
			app.logger.Debugw("rate limiter pruned", "at", time.Now().Format(time.RFC1123))
		}
	}()
}
