package core

import (
	"math"
	"time"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// LocationFreshness is how long a captured position counts as fresh.
// It matches the capture cadence: a worker in good health updates at
// least this often.
const LocationFreshness = 5 * time.Minute

// HaversineKm returns the great-circle distance in kilometres between two
// points given in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// IsFresh reports whether a location captured at ts is still fresh at now.
// Dashboards highlight stale entries but do not hide them.
func IsFresh(now, ts time.Time) bool {
	return now.Sub(ts) < LocationFreshness
}
