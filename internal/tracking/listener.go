package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// locationChannel is the pg_notify channel fired by the users table
// trigger whenever a location column changes.
const locationChannel = "user_location"

// Scope selects which change events a listener delivers.
type Scope int

const (
	// SharingOnly delivers changes for rows with sharing enabled — the
	// default dashboard view. Rows leaving the view are picked up by the
	// 30-second poll.
	SharingOnly Scope = iota
	// AllUsers delivers every change — the broadened "all logins" view.
	AllUsers
)

// ChangeEvent is the decoded payload of one user_location notification.
type ChangeEvent struct {
	UserID  int    `json:"user_id"`
	Role    string `json:"role"`
	Sharing bool   `json:"sharing"`
}

// Listener turns PostgreSQL LISTEN/NOTIFY on the user_location channel
// into a stream of ChangeEvents. It holds one pooled connection while
// running and reconnects with a short backoff on transient failures.
type Listener struct {
	pool    *pgxpool.Pool
	scope   Scope
	metrics *Metrics
	events  chan ChangeEvent
}

func NewListener(pool *pgxpool.Pool, scope Scope, metrics *Metrics) *Listener {
	return &Listener{
		pool:    pool,
		scope:   scope,
		metrics: metrics,
		events:  make(chan ChangeEvent, 16),
	}
}

// Events is the stream of matching change notifications. Slow consumers
// lose events rather than blocking the feed; the poll loop papers over
// any gap.
func (l *Listener) Events() <-chan ChangeEvent {
	return l.events
}

// Run blocks until ctx is cancelled, delivering notifications to Events.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("location listener: %v (reconnecting)", err)
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+locationChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			log.Printf("location listener: bad payload %q: %v", notification.Payload, err)
			continue
		}
		if l.scope == SharingOnly && !ev.Sharing {
			continue
		}

		l.metrics.NotificationsTotal.Inc()
		select {
		case l.events <- ev:
		default:
		}
	}
}
