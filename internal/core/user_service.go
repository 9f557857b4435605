package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserService provides user lookup and credential verification.
type UserService interface {
	// GetByUsername finds an active user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID returns a user by primary key.
	GetByID(ctx context.Context, userID int) (*User, error)

	// Authenticate verifies a username/password pair and stamps last_login
	// on success.
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

const userColumns = `id, username, email, password_hash, role, is_active,
	location_sharing, location_lat, location_lng, location_accuracy_m, location_at,
	last_login, created_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var lat, lng, accuracy *float64
	var locationAt *time.Time
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.LocationSharing, &lat, &lng, &accuracy, &locationAt,
		&u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil && locationAt != nil {
		u.Location = &Location{
			Latitude:  *lat,
			Longitude: *lng,
			Timestamp: *locationAt,
		}
		if accuracy != nil {
			u.Location.Accuracy = *accuracy
		}
	}
	return u, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1 AND is_active = true LIMIT 1",
		username,
	))
	if err != nil {
		return nil, fmt.Errorf("user %q not found: %w", username, err)
	}
	return u, nil
}

func (s *userService) GetByID(ctx context.Context, userID int) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", userID,
	))
	if err != nil {
		return nil, fmt.Errorf("user id=%d not found: %w", userID, err)
	}
	return u, nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("invalid credentials for %q", username)
	}
	if _, err := s.pool.Exec(ctx,
		"UPDATE users SET last_login = now() WHERE id = $1", u.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to stamp last login: %w", err)
	}
	return u, nil
}

// HashPassword returns the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword compares a stored hash with a candidate password in
// constant time.
func VerifyPassword(storedHash, password string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}
