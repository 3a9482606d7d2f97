package app

import (
	"context"
	"sync"
	"time"
)

// Ticker is driven by a Countdown once per period.
type Ticker interface {
	Tick() (remaining int, finished bool)
}

// TickerFactory creates the tick channel and its stop function.
type TickerFactory func(period time.Duration) (<-chan time.Time, func())

// Countdown runs at most one ticking goroutine at a time and stops for good
// once the target reports it is finished.
type Countdown struct {
	period    time.Duration
	newTicker TickerFactory

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCountdown(period time.Duration) *Countdown {
	return NewCountdownWithTicker(period, func(d time.Duration) (<-chan time.Time, func()) {
		t := time.NewTicker(d)
		return t.C, t.Stop
	})
}

// NewCountdownWithTicker is test-only for driving ticks by hand.
func NewCountdownWithTicker(period time.Duration, factory TickerFactory) *Countdown {
	if period <= 0 {
		period = time.Second
	}
	return &Countdown{period: period, newTicker: factory}
}

// Start begins ticking target. It returns false when a countdown is already running.
func (c *Countdown) Start(ctx context.Context, target Ticker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runningLocked() {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticks, stop := c.newTicker(c.period)
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if _, finished := target.Tick(); finished {
					return
				}
			}
		}
	}()
	return true
}

// Stop cancels the running countdown and waits for it to exit. It must not
// be called while holding a lock the target's Tick acquires.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a countdown goroutine is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

func (c *Countdown) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
