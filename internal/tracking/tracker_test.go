package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"distro-backoffice/internal/core"
)

type fakePositioner struct {
	mu  sync.Mutex
	fix Fix
	err error
}

func (p *fakePositioner) Position(_ context.Context, _ PositionOptions) (Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return Fix{}, p.err
	}
	return p.fix, nil
}

func (p *fakePositioner) set(fix Fix, err error) {
	p.mu.Lock()
	p.fix, p.err = fix, err
	p.mu.Unlock()
}

type fakeStore struct {
	mu        sync.Mutex
	published chan core.Location
	stops     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{published: make(chan core.Location, 16)}
}

func (s *fakeStore) PublishLocation(_ context.Context, _ int, loc core.Location) error {
	s.published <- loc
	return nil
}

func (s *fakeStore) StopSharing(_ context.Context, _ int) error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func waitPublish(t *testing.T, s *fakeStore) core.Location {
	t.Helper()
	select {
	case loc := <-s.published:
		return loc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a published location")
		return core.Location{}
	}
}

func assertNoPublish(t *testing.T, s *fakeStore) {
	t.Helper()
	select {
	case loc := <-s.published:
		t.Fatalf("unexpected publish: %+v", loc)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTracker_StartCapturesImmediately(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 9.384489, Longitude: 80.408737, Accuracy: 12}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	loc := waitPublish(t, store)
	if loc.Latitude != 9.384489 || loc.Longitude != 80.408737 {
		t.Errorf("published %+v, want the acquired fix", loc)
	}
	if !loc.Timestamp.Equal(clock.Now()) {
		t.Errorf("timestamp = %v, want clock time %v", loc.Timestamp, clock.Now())
	}
	if !tr.Active() {
		t.Error("tracker should report active after Start")
	}
}

func TestTracker_CaptureCadence(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 6.9271, Longitude: 79.8612}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	waitPublish(t, store)
	clock.waitCreated(t) // loop is parked on its interval timer

	clock.Advance(CaptureInterval - time.Second)
	assertNoPublish(t, store)

	clock.Advance(time.Second)
	waitPublish(t, store)
	clock.waitReset(t)

	clock.Advance(CaptureInterval)
	waitPublish(t, store)
}

func TestTracker_UpdateNowResetsTimer(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 6.9271, Longitude: 79.8612}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	waitPublish(t, store)
	clock.waitCreated(t)

	clock.Advance(3 * time.Minute)
	tr.UpdateNow()
	waitPublish(t, store)
	clock.waitReset(t)

	// The manual capture pushed the next scheduled one a full interval out.
	clock.Advance(CaptureInterval - time.Second)
	assertNoPublish(t, store)
	clock.Advance(time.Second)
	waitPublish(t, store)
}

func TestTracker_FailedFixSkipsCycle(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{err: ErrPositionUnavailable}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	clock.waitCreated(t)
	assertNoPublish(t, store)

	// The loop survives the failure; the next tick publishes.
	pos.set(Fix{Latitude: 6.9271, Longitude: 79.8612}, nil)
	clock.Advance(CaptureInterval)
	waitPublish(t, store)
}

func TestTracker_StopFlipsSharingOff(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 6.9271, Longitude: 79.8612}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	waitPublish(t, store)
	clock.waitCreated(t)

	tr.Stop(context.Background())
	if tr.Active() {
		t.Error("tracker should report inactive after Stop")
	}
	if store.stopCount() != 1 {
		t.Errorf("StopSharing called %d times, want 1", store.stopCount())
	}

	// Stopped trackers ignore ticks and manual requests.
	clock.Advance(2 * CaptureInterval)
	tr.UpdateNow()
	assertNoPublish(t, store)

	tr.Stop(context.Background())
	if store.stopCount() != 1 {
		t.Error("second Stop must be a no-op")
	}
}

func TestTracker_StopSuppressesInFlightPublish(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 6.9271, Longitude: 79.8612}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	waitPublish(t, store)
	tr.Stop(context.Background())

	// A cycle that started before Stop carries a stale generation and must
	// not publish even if its fix arrives after the tracker shut down.
	tr.cycle(context.Background(), 1)
	assertNoPublish(t, store)
}

func TestTracker_RestartAfterStop(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	pos := &fakePositioner{fix: Fix{Latitude: 6.9271, Longitude: 79.8612}}
	tr := NewTracker(7, store, pos, clock, NewMetrics())

	tr.Start(context.Background())
	waitPublish(t, store)
	tr.Stop(context.Background())

	tr.Start(context.Background())
	defer tr.Stop(context.Background())
	waitPublish(t, store)
	if !tr.Active() {
		t.Error("tracker should be active after restart")
	}
}
