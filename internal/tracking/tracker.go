package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"distro-backoffice/internal/core"
)

// CaptureInterval is the cadence of the per-worker capture loop. It also
// defines location freshness (core.LocationFreshness): a healthy worker
// publishes at least this often.
const CaptureInterval = 5 * time.Minute

// captureTimeout bounds how long one position acquisition may take.
const captureTimeout = 15 * time.Second

// ErrPositionUnavailable is returned by a Positioner when the device
// cannot produce a fix within the timeout or permission is denied.
var ErrPositionUnavailable = errors.New("position unavailable")

// Fix is a raw device position.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres; 0 means unknown
}

// PositionOptions tunes a single acquisition.
type PositionOptions struct {
	Timeout      time.Duration
	MaxCacheAge  time.Duration // a cached fix no older than this is acceptable
	HighAccuracy bool
}

// Positioner is the device positioning capability. Implementations sit
// outside this package (mobile shell, GPS daemon, test fake).
type Positioner interface {
	Position(ctx context.Context, opts PositionOptions) (Fix, error)
}

// Store is the slice of core.LocationService the tracker needs.
type Store interface {
	PublishLocation(ctx context.Context, userID int, loc core.Location) error
	StopSharing(ctx context.Context, userID int) error
}

// Tracker runs one worker's capture-and-publish loop.
//
// State machine: Stopped (initial) ⇄ Active. Start runs a cycle
// immediately, then every CaptureInterval. UpdateNow runs one extra cycle
// and resets the interval timer rather than stacking a pending tick. Stop
// cancels the timer, suppresses any in-flight cycle's publish, and turns
// the sharing flag off.
//
// Per-tick failures (no fix, store unreachable) are swallowed: the loop
// never retries early and never dies; it waits for the next tick.
type Tracker struct {
	userID  int
	store   Store
	pos     Positioner
	clock   Clock
	metrics *Metrics

	mu      sync.Mutex
	running bool
	gen     uint64 // increments on every Start/Stop edge
	kick    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewTracker(userID int, store Store, pos Positioner, clock Clock, metrics *Metrics) *Tracker {
	return &Tracker{
		userID:  userID,
		store:   store,
		pos:     pos,
		clock:   clock,
		metrics: metrics,
	}
}

// Start moves the tracker to Active. Calling Start while already Active is
// a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.gen++
	gen := t.gen
	t.kick = make(chan struct{}, 1)
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	kick, done := t.kick, t.done
	t.mu.Unlock()

	go t.loop(runCtx, gen, kick, done)
}

// Stop moves the tracker to Stopped and flips the worker's sharing flag
// off. The last-known position remains on the record. Calling Stop while
// already Stopped is a no-op.
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.gen++
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	if err := t.store.StopSharing(ctx, t.userID); err != nil {
		log.Printf("tracker user=%d: stop sharing: %v", t.userID, err)
	}
}

// UpdateNow requests one immediate capture cycle and a timer reset.
// Multiple calls before the loop services the request coalesce into one.
// No-op while Stopped.
func (t *Tracker) UpdateNow() {
	t.mu.Lock()
	kick := t.kick
	running := t.running
	t.mu.Unlock()
	if !running {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// Active reports whether the capture loop is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) loop(ctx context.Context, gen uint64, kick chan struct{}, done chan struct{}) {
	defer close(done)

	t.cycle(ctx, gen)
	timer := t.clock.NewTimer(CaptureInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C():
			t.cycle(ctx, gen)
			timer.Reset(CaptureInterval)
		case <-kick:
			t.cycle(ctx, gen)
			timer.Reset(CaptureInterval)
		case <-ctx.Done():
			return
		}
	}
}

// cycle acquires one fix and publishes it. Any failure makes the cycle a
// no-op until the next tick.
func (t *Tracker) cycle(ctx context.Context, gen uint64) {
	t.metrics.CapturesTotal.Inc()

	posCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	fix, err := t.pos.Position(posCtx, PositionOptions{
		Timeout:      captureTimeout,
		MaxCacheAge:  CaptureInterval,
		HighAccuracy: true,
	})
	cancel()
	if err != nil {
		t.metrics.CaptureFailures.Inc()
		if !errors.Is(err, ErrPositionUnavailable) && ctx.Err() == nil {
			log.Printf("tracker user=%d: capture: %v", t.userID, err)
		}
		return
	}

	// Liveness check: a Stop that raced this cycle must win. The publish
	// is skipped if the tracker left the generation this cycle started in.
	t.mu.Lock()
	alive := t.running && t.gen == gen
	t.mu.Unlock()
	if !alive {
		return
	}

	loc := core.Location{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Timestamp: t.clock.Now().UTC(),
	}
	if err := t.store.PublishLocation(ctx, t.userID, loc); err != nil {
		t.metrics.PublishFailures.Inc()
		if ctx.Err() == nil {
			log.Printf("tracker user=%d: publish: %v", t.userID, err)
		}
		return
	}
	t.metrics.PublishesTotal.Inc()
}
