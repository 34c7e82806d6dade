// Package jobs implements the three scheduled pipeline jobs: catalogue
// indexing, detail parsing and outbox publishing.
package jobs

import (
	"context"
	"math/rand"
	"time"
)

// DelayConfig bounds the randomized politeness pause between requests to
// the same distributor.
type DelayConfig struct {
	Min time.Duration
	Max time.Duration
}

// wait sleeps a random duration in [cfg.Min, cfg.Max], returning early if
// ctx ends. A zero config waits not at all.
func wait(ctx context.Context, cfg DelayConfig) error {
	if cfg.Max <= 0 || cfg.Max < cfg.Min {
		return ctx.Err()
	}
	d := cfg.Min
	if span := cfg.Max - cfg.Min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
