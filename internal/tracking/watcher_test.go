package tracking

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"distro-backoffice/internal/core"
)

type fakeLister struct {
	mu    sync.Mutex
	users []core.User
	calls int
}

func (l *fakeLister) ListTracked(_ context.Context, _ bool) ([]core.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	out := make([]core.User, len(l.users))
	copy(out, l.users)
	return out, nil
}

func (l *fakeLister) set(users []core.User) {
	l.mu.Lock()
	l.users = users
	l.mu.Unlock()
}

func (l *fakeLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return Snapshot{}
	}
}

func TestWatcher_RefreshOnTickAndEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	lister := &fakeLister{}
	lister.set([]core.User{{ID: 2, Username: "kumar", Role: core.RoleDriver, LocationSharing: true}})
	events := make(chan ChangeEvent)
	w := NewWatcher(lister, events, clock, NewMetrics(), ReferencePoint{Latitude: 9.39, Longitude: 80.41}, true)

	snaps, cancelSub := w.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	snap := waitSnapshot(t, snaps)
	if len(snap.Staff) != 1 || snap.Staff[0].Username != "kumar" {
		t.Fatalf("initial snapshot = %+v, want one row for kumar", snap.Staff)
	}
	clock.waitCreated(t) // the poll ticker exists

	// A change event triggers an immediate re-fetch.
	lister.set([]core.User{
		{ID: 2, Username: "kumar", Role: core.RoleDriver, LocationSharing: true},
		{ID: 3, Username: "silva", Role: core.RoleDriver, LocationSharing: true},
	})
	events <- ChangeEvent{UserID: 3, Role: string(core.RoleDriver), Sharing: true}
	snap = waitSnapshot(t, snaps)
	if len(snap.Staff) != 2 {
		t.Fatalf("snapshot after event has %d rows, want 2", len(snap.Staff))
	}

	// The poll tick re-fetches even without any event.
	before := lister.callCount()
	clock.Advance(PollInterval)
	waitSnapshot(t, snaps)
	if lister.callCount() != before+1 {
		t.Errorf("ListTracked calls = %d, want %d after one tick", lister.callCount(), before+1)
	}
}

func TestWatcher_SubscribersGetLatestSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	lister := &fakeLister{}
	lister.set([]core.User{{ID: 2, Username: "kumar", Role: core.RoleDriver}})
	events := make(chan ChangeEvent)
	w := NewWatcher(lister, events, clock, NewMetrics(), ReferencePoint{}, false)

	first, cancelFirst := w.Subscribe()
	defer cancelFirst()
	second, cancelSecond := w.Subscribe()
	defer cancelSecond()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	clock.waitCreated(t)

	// Two refreshes without anyone reading: each subscriber must see only
	// the newest state.
	events <- ChangeEvent{UserID: 2, Role: string(core.RoleDriver)}
	lister.set([]core.User{
		{ID: 2, Username: "kumar", Role: core.RoleDriver},
		{ID: 4, Username: "nimal", Role: core.RoleSales},
	})
	events <- ChangeEvent{UserID: 4, Role: string(core.RoleSales)}

	for _, ch := range []<-chan Snapshot{first, second} {
		deadline := time.After(2 * time.Second)
		for {
			snap := waitSnapshot(t, ch)
			if len(snap.Staff) == 2 {
				break
			}
			select {
			case <-deadline:
				t.Fatal("never observed the newest snapshot")
			default:
			}
		}
	}

	// An unsubscribed consumer stops receiving; its channel closes.
	cancelSecond()
	if _, ok := <-second; ok {
		// Drain any snapshot delivered before the unsubscribe landed.
		if _, ok := <-second; ok {
			t.Error("unsubscribed channel should be closed")
		}
	}
}

func TestWatcher_SnapshotDerivesFreshnessAndDistance(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	lister := &fakeLister{}
	lister.set([]core.User{
		{
			ID: 2, Username: "kumar", Role: core.RoleDriver, LocationSharing: true,
			Location: &core.Location{Latitude: 9.384489, Longitude: 80.408737, Timestamp: now.Add(-2 * time.Minute)},
		},
		{
			ID: 3, Username: "silva", Role: core.RoleDriver, LocationSharing: true,
			Location: &core.Location{Latitude: 6.9271, Longitude: 79.8612, Timestamp: now.Add(-20 * time.Minute)},
		},
		{ID: 4, Username: "nimal", Role: core.RoleSales},
	})
	w := NewWatcher(lister, nil, clock, NewMetrics(), ReferencePoint{Latitude: 9.39, Longitude: 80.41}, false)

	snap, err := w.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Staff) != 3 {
		t.Fatalf("snapshot has %d rows, want 3", len(snap.Staff))
	}

	kumar, silva, nimal := snap.Staff[0], snap.Staff[1], snap.Staff[2]
	if !kumar.Fresh {
		t.Error("a two-minute-old position must be fresh")
	}
	if kumar.DistanceKm == nil || math.Abs(*kumar.DistanceKm-0.628) > 0.01 {
		t.Errorf("kumar distance = %v, want about 0.628 km", kumar.DistanceKm)
	}
	if silva.Fresh {
		t.Error("a twenty-minute-old position must be stale")
	}
	if silva.DistanceKm == nil || *silva.DistanceKm < 200 {
		t.Errorf("silva distance = %v, want a few hundred km", silva.DistanceKm)
	}
	if nimal.Fresh || nimal.DistanceKm != nil || nimal.Location != nil {
		t.Errorf("a user with no position must have no derived fields, got %+v", nimal)
	}
}
