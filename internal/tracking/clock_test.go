package tracking

import (
	"sync"
	"testing"
	"time"
)

// fakeClock drives timers and tickers manually. Creation and reset events
// are signalled on channels so tests can wait until the loop under test is
// actually parked on its timer before advancing time.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker

	created chan struct{}
	resets  chan struct{}
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{
		now:     start,
		created: make(chan struct{}, 64),
		resets:  make(chan struct{}, 64),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, ch: make(chan time.Time, 1), at: c.now.Add(d), active: true}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.created <- struct{}{}
	return t
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	t := &fakeTicker{ch: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	c.created <- struct{}{}
	return t
}

// Advance moves the clock forward, firing any due timers and tickers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if t.active && !c.now.Before(t.at) {
			t.active = false
			select {
			case t.ch <- c.now:
			default:
			}
		}
	}
	for _, t := range c.tickers {
		for !t.stopped && !c.now.Before(t.next) {
			select {
			case t.ch <- c.now:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

// waitCreated blocks until a timer or ticker has been constructed.
func (c *fakeClock) waitCreated(t *testing.T) {
	t.Helper()
	select {
	case <-c.created:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer creation")
	}
}

// waitReset blocks until a timer has been reset.
func (c *fakeClock) waitReset(t *testing.T) {
	t.Helper()
	select {
	case <-c.resets:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer reset")
	}
}

type fakeTimer struct {
	clock  *fakeClock
	ch     chan time.Time
	at     time.Time
	active bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Reset(d time.Duration) {
	t.clock.mu.Lock()
	t.at = t.clock.now.Add(d)
	t.active = true
	t.clock.mu.Unlock()
	t.clock.resets <- struct{}{}
}

func (t *fakeTimer) Stop() {
	t.clock.mu.Lock()
	t.active = false
	t.clock.mu.Unlock()
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
