package resilience

import (
	"context"
	"sync"
	"time"
)

const defaultRateGateSpacing = 300 * time.Millisecond

// RateGate enforces a minimum spacing between calls to one upstream.
// It is safe for concurrent use.
type RateGate struct {
	clock      Clock
	mu         sync.Mutex
	minSpacing time.Duration
	next       time.Time
}

// NewRateGate returns a gate that lets one call through every minSpacing.
// A non-positive spacing falls back to 300ms.
func NewRateGate(minSpacing time.Duration, clock Clock) *RateGate {
	if minSpacing <= 0 {
		minSpacing = defaultRateGateSpacing
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RateGate{
		clock:      clock,
		minSpacing: minSpacing,
		next:       clock.Now(),
	}
}

// Wait blocks until the caller may proceed or ctx is done.
func (g *RateGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.clock.Now()
		wait := g.next.Sub(now)
		if wait <= 0 {
			g.next = now.Add(g.minSpacing)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Cooldown pushes the next permitted call at least d into the future,
// typically after the upstream reported a rate limit.
func (g *RateGate) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.clock.Now().Add(d)
	if next.After(g.next) {
		g.next = next
	}
}
