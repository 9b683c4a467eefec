package services

import (
	"context"
	"sync"
	"time"

	"tabletally/internal/logger"
)

// BGGRateGate enforces the minimum wall-clock interval between any two
// outbound BGG calls. One instance is shared by every client in the process;
// it is the only cross-task shared mutable state in the sync core.
//
// Wait reserves the next slot under the mutex, then sleeps outside it, so
// concurrent tasks queue in arrival order without holding the lock while
// blocked.
type BGGRateGate struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	log      logger.Logger
}

func NewBGGRateGate(interval time.Duration) *BGGRateGate {
	return &BGGRateGate{
		interval: interval,
		log:      logger.New("BGGRateGate"),
	}
}

// Wait blocks until this caller's reserved slot arrives or ctx is cancelled
func (g *BGGRateGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()

	fireAt := g.next
	if fireAt.Before(now) {
		fireAt = now
	}
	g.next = fireAt.Add(g.interval)
	g.mu.Unlock()

	wait := time.Until(fireAt)
	if wait <= 0 {
		return nil
	}

	g.log.Debug("Waiting on rate gate", "wait", wait.String())

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NextAllowed returns the earliest time the next call may fire
func (g *BGGRateGate) NextAllowed() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// Interval returns the configured minimum interval between calls
func (g *BGGRateGate) Interval() time.Duration {
	return g.interval
}
