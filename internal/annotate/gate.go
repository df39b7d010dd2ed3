package annotate

import (
	"context"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QuotaGate coordinates quota backoff across workers sharing one
// collaborator. While any worker is backing off, Wait blocks every other
// worker until the last backoff ends. A nil *QuotaGate never blocks.
type QuotaGate struct {
	mu     sync.Mutex
	active int
	open   chan struct{}
}

// NewQuotaGate returns an open gate.
func NewQuotaGate() *QuotaGate {
	return &QuotaGate{}
}

// Pause closes the gate and sleeps for d. The gate reopens when the last
// concurrent Pause returns.
func (g *QuotaGate) Pause(ctx context.Context, d time.Duration, sleep Sleeper) error {
	if g == nil {
		return sleep(ctx, d)
	}

	g.mu.Lock()
	if g.active == 0 {
		g.open = make(chan struct{})
	}
	g.active++
	g.mu.Unlock()

	err := sleep(ctx, d)

	g.mu.Lock()
	g.active--
	if g.active == 0 {
		close(g.open)
		g.open = nil
	}
	g.mu.Unlock()
	return err
}

// Wait blocks while a backoff is in progress.
func (g *QuotaGate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether a backoff is in progress.
func (g *QuotaGate) Paused() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active > 0
}
