package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationService owns the location fields of the shared user record. Each
// worker's capture loop is the only writer of its own row; dashboards only
// read. The schema trigger fans every write out on the user_location
// channel.
type LocationService interface {
	// PublishLocation writes a captured position, turns sharing on, and
	// refreshes last_login (the worker is demonstrably active).
	PublishLocation(ctx context.Context, userID int, loc Location) error

	// StopSharing turns the sharing flag off. The last-known position is
	// kept unless explicitly cleared.
	StopSharing(ctx context.Context, userID int) error

	// ClearLocation nulls the position and turns sharing off — the
	// operator's reset used when seeding or scrubbing demo data.
	ClearLocation(ctx context.Context, userID int) error

	// ListTracked returns users in the tracked roles (Sales, Driver).
	// When onlySharing is true, rows with sharing off are excluded.
	ListTracked(ctx context.Context, onlySharing bool) ([]User, error)
}

type locationService struct {
	pool *pgxpool.Pool
}

func NewLocationService(pool *pgxpool.Pool) LocationService {
	return &locationService{pool: pool}
}

func (s *locationService) PublishLocation(ctx context.Context, userID int, loc Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("invalid coordinates (%v, %v)", loc.Latitude, loc.Longitude)
	}
	if loc.Timestamp.IsZero() {
		return fmt.Errorf("location timestamp is required")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET location_lat = $1, location_lng = $2, location_accuracy_m = $3,
		    location_at = $4, location_sharing = true, last_login = now()
		WHERE id = $5 AND is_active = true
	`, loc.Latitude, loc.Longitude, nullableAccuracy(loc.Accuracy), loc.Timestamp, userID)
	if err != nil {
		return fmt.Errorf("failed to publish location for user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found or inactive", userID)
	}
	return nil
}

func nullableAccuracy(accuracy float64) *float64 {
	if accuracy <= 0 {
		return nil
	}
	return &accuracy
}

func (s *locationService) StopSharing(ctx context.Context, userID int) error {
	if _, err := s.pool.Exec(ctx,
		"UPDATE users SET location_sharing = false WHERE id = $1", userID,
	); err != nil {
		return fmt.Errorf("failed to stop sharing for user %d: %w", userID, err)
	}
	return nil
}

func (s *locationService) ClearLocation(ctx context.Context, userID int) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE users
		SET location_lat = NULL, location_lng = NULL, location_accuracy_m = NULL,
		    location_at = NULL, location_sharing = false
		WHERE id = $1
	`, userID); err != nil {
		return fmt.Errorf("failed to clear location for user %d: %w", userID, err)
	}
	return nil
}

func (s *locationService) ListTracked(ctx context.Context, onlySharing bool) ([]User, error) {
	query := "SELECT " + userColumns + ` FROM users
		WHERE is_active = true AND role = ANY($1)`
	args := []any{[]string{string(RoleSales), string(RoleDriver)}}
	if onlySharing {
		query += " AND location_sharing = true"
	}
	query += " ORDER BY username"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
