package mapview

import (
	"math"

	"bus-tracker/internal/fleet"
)

// averageSpeedKmh is the assumed city speed of a bus.
const averageSpeedKmh = 22.0

// ETA is the straight-line estimate from a bus to the destination.
type ETA struct {
	DistanceKm float64 `json:"distanceKm"`
	Minutes    int     `json:"minutes"`
}

// EstimateETA reports great-circle distance and travel time at the average
// city speed, rounded to whole minutes and never below one.
func EstimateETA(from, to fleet.Coordinates) ETA {
	km := haversine(from.Lat, from.Lng, to.Lat, to.Lng) / 1000
	minutes := int(math.Round(km / averageSpeedKmh * 60))
	if minutes < 1 {
		minutes = 1
	}
	return ETA{DistanceKm: math.Round(km*10) / 10, Minutes: minutes}
}

// Haversine distance in meters
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// bearingDeg is the initial bearing from a to b, in [0, 360).
func bearingDeg(a, b fleet.Coordinates) float64 {
	y := math.Sin((b.Lng-a.Lng)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lng-a.Lng)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
