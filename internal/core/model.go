package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role controls which surfaces a user can reach. Only Sales and Driver
// roles participate in live location tracking.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleSales   Role = "Sales"
	RoleDriver  Role = "Driver"
)

// TrackedRoles are the roles whose positions appear on the staff dashboard.
var TrackedRoles = []Role{RoleSales, RoleDriver}

// Location is a single captured device position.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// User represents a system user. The location fields are only meaningful
// while LocationSharing is true; they hold the last known position after
// sharing stops.
type User struct {
	ID              int        `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"is_active"`
	LocationSharing bool       `json:"location_sharing"`
	Location        *Location  `json:"location,omitempty"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Customer is a buying outlet on a delivery route.
type Customer struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Route     string    `json:"route"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a catalog item. Stock is the warehouse quantity on hand;
// drivers never see it directly — their view is derived from active
// allocations (see AllocationService.VisibleStock).
type Product struct {
	ID        int             `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Stock     int             `json:"stock"`
	CostPrice decimal.Decimal `json:"cost_price"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}
