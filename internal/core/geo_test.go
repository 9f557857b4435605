package core_test

import (
	"math"
	"testing"
	"time"

	"distro-backoffice/internal/core"
)

func TestHaversineKm_Identity(t *testing.T) {
	if d := core.HaversineKm(9.384489, 80.408737, 9.384489, 80.408737); d != 0 {
		t.Errorf("distance from a point to itself should be 0, got %v", d)
	}
}

func TestHaversineKm_ShortHop(t *testing.T) {
	// Depot to a point ~0.63 km north-east.
	d := core.HaversineKm(9.384489, 80.408737, 9.390000, 80.410000)
	if d < 0.6 || d > 0.7 {
		t.Fatalf("expected distance in (0.6, 0.7) km, got %v", d)
	}
	// Against a reference haversine computation, to 3 decimal places.
	if math.Abs(d-0.628) > 0.001 {
		t.Errorf("expected ~0.628 km, got %.6f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := core.HaversineKm(9.384489, 80.408737, 6.927079, 79.861244)
	b := core.HaversineKm(6.927079, 79.861244, 9.384489, 80.408737)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("haversine not symmetric: %v vs %v", a, b)
	}
}

func TestIsFresh_Boundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just captured", 0, true},
		{"4m59s old is fresh", 4*time.Minute + 59*time.Second, true},
		{"exactly 5m old is stale", 5 * time.Minute, false},
		{"5m01s old is stale", 5*time.Minute + time.Second, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := core.IsFresh(now, now.Add(-tc.age)); got != tc.want {
				t.Errorf("IsFresh(age=%v) = %v, want %v", tc.age, got, tc.want)
			}
		})
	}
}
