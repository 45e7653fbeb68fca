// Package timeutil provides a testable abstraction over frame pacing.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the time operations used to pace frame delivery.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers a tick every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// ManualClock is a clock whose tickers only fire when Tick is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
}

// NewManualClock creates a ManualClock set to the given time.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the manual clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker creates a ManualTicker. The interval is recorded but ticks are
// only delivered by Tick.
func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ManualTicker{Interval: d, ch: make(chan time.Time), stop: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick advances the clock by each live ticker's interval and blocks until
// every live ticker's tick has been received. It returns the number of
// tickers that ticked.
func (c *ManualClock) Tick() int {
	c.mu.Lock()
	tickers := append([]*ManualTicker(nil), c.tickers...)
	c.mu.Unlock()

	n := 0
	for _, t := range tickers {
		if t.stopped() {
			continue
		}
		c.mu.Lock()
		c.now = c.now.Add(t.Interval)
		now := c.now
		c.mu.Unlock()
		select {
		case t.ch <- now:
			n++
		case <-t.done():
		}
	}
	return n
}

// Tickers returns the number of tickers created so far.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// ManualTicker is a ticker driven by ManualClock.Tick.
type ManualTicker struct {
	Interval time.Duration

	ch   chan time.Time
	stop chan struct{}
	once sync.Once
}

// C returns the ticker channel.
func (t *ManualTicker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker. A Tick blocked on this ticker returns.
func (t *ManualTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *ManualTicker) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *ManualTicker) done() <-chan struct{} {
	return t.stop
}
