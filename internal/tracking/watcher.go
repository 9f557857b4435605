package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"distro-backoffice/internal/core"
)

// PollInterval is the dashboard's unconditional re-fetch cadence, run
// alongside push notifications.
const PollInterval = 30 * time.Second

// StaffLocation is one dashboard row: the tracked user plus derived
// freshness and distance from the reference point.
type StaffLocation struct {
	UserID     int            `json:"user_id"`
	Username   string         `json:"username"`
	Role       core.Role      `json:"role"`
	Sharing    bool           `json:"sharing"`
	Location   *core.Location `json:"location,omitempty"`
	Fresh      bool           `json:"fresh"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
	LastLogin  *time.Time     `json:"last_login,omitempty"`
}

// Snapshot is the dashboard state at one refresh.
type Snapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Staff   []StaffLocation `json:"staff"`
}

// Lister is the slice of core.LocationService the watcher reads from.
type Lister interface {
	ListTracked(ctx context.Context, onlySharing bool) ([]core.User, error)
}

// ReferencePoint is the fixed point (the depot) dashboards measure
// distance from.
type ReferencePoint struct {
	Latitude  float64
	Longitude float64
}

// Watcher keeps a dashboard view of staff locations current using both
// refresh mechanisms together: a 30-second poll and immediate re-fetch on
// any matching change event. The two are uncoordinated on purpose — the
// poll is the safety net for missed notifications.
type Watcher struct {
	lister      Lister
	events      <-chan ChangeEvent
	clock       Clock
	metrics     *Metrics
	ref         ReferencePoint
	onlySharing bool

	mu      sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func NewWatcher(lister Lister, events <-chan ChangeEvent, clock Clock, metrics *Metrics, ref ReferencePoint, onlySharing bool) *Watcher {
	return &Watcher{
		lister:      lister,
		events:      events,
		clock:       clock,
		metrics:     metrics,
		ref:         ref,
		onlySharing: onlySharing,
		subs:        make(map[int]chan Snapshot),
	}
}

// Subscribe registers a dashboard consumer. Each subscriber's channel holds
// only the most recent snapshot: a slow consumer sees the newest state, not
// a backlog. The returned cancel func must be called when done.
func (w *Watcher) Subscribe() (<-chan Snapshot, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSub
	w.nextSub++
	ch := make(chan Snapshot, 1)
	w.subs[id] = ch
	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Run refreshes immediately, then on every poll tick and change event,
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.refresh(ctx)

	ticker := w.clock.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			w.refresh(ctx)
		case <-w.events:
			w.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Refresh performs one immediate re-fetch outside the Run loop, for
// request-scoped reads.
func (w *Watcher) Refresh(ctx context.Context) (*Snapshot, error) {
	users, err := w.lister.ListTracked(ctx, w.onlySharing)
	if err != nil {
		return nil, err
	}
	w.metrics.RefreshesTotal.Inc()
	snap := w.buildSnapshot(users)
	return &snap, nil
}

func (w *Watcher) refresh(ctx context.Context) {
	snap, err := w.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("location watcher: refresh: %v", err)
		}
		return
	}
	w.broadcast(*snap)
}

// broadcast delivers a snapshot to every subscriber, latest-wins: a stale
// unread snapshot is dropped in favour of the new one.
func (w *Watcher) broadcast(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (w *Watcher) buildSnapshot(users []core.User) Snapshot {
	now := w.clock.Now()
	snap := Snapshot{TakenAt: now}
	for _, u := range users {
		row := StaffLocation{
			UserID:    u.ID,
			Username:  u.Username,
			Role:      u.Role,
			Sharing:   u.LocationSharing,
			Location:  u.Location,
			LastLogin: u.LastLogin,
		}
		if u.Location != nil {
			row.Fresh = core.IsFresh(now, u.Location.Timestamp)
			d := core.HaversineKm(w.ref.Latitude, w.ref.Longitude, u.Location.Latitude, u.Location.Longitude)
			row.DistanceKm = &d
		}
		snap.Staff = append(snap.Staff, row)
	}
	return snap
}
