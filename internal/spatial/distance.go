package spatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
)

// DistanceMeters calculates the great-circle distance between two points in meters
// using the Haversine formula
func DistanceMeters(p1, p2 models.LatLng) float64 {
	return HaversineDistance(p1.Lat, p1.Lng, p2.Lat, p2.Lng)
}

// HaversineDistance is DistanceMeters on raw degree values
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2
// Returns bearing in degrees (0-360), where 0 is North, 90 is East, etc.
func Bearing(p1, p2 models.LatLng) float64 {
	lat1Rad := p1.Lat * math.Pi / 180
	lat2Rad := p2.Lat * math.Pi / 180
	lonDiff := (p2.Lng - p1.Lng) * math.Pi / 180

	y := math.Sin(lonDiff) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lonDiff)
	bearing := math.Atan2(y, x)

	bearingDeg := bearing * 180 / math.Pi
	return math.Mod(bearingDeg+360, 360)
}

// DestinationPoint calculates the destination point given a start point, bearing, and distance
// bearing: degrees (0-360), distance: meters
func DestinationPoint(start models.LatLng, bearing, distance float64) models.LatLng {
	p := s2.LatLngFromDegrees(start.Lat, start.Lng)
	bearingRad := bearing * math.Pi / 180
	angularDistance := distance / EarthRadiusMeters

	latRad := p.Lat.Radians()
	lonRad := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angularDistance) +
		math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(bearingRad))

	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(lat2))

	lng := lon2 * 180 / math.Pi
	if lng > 180 {
		lng -= 360
	} else if lng < -180 {
		lng += 360
	}
	return models.LatLng{Lat: lat2 * 180 / math.Pi, Lng: lng}
}

// CircleRing approximates a circle as a closed ring of n+1 vertices,
// for surfaces that have no native circle primitive
func CircleRing(center models.LatLng, radiusMeters float64, n int) []models.LatLng {
	if n < 3 {
		n = 3
	}
	ring := make([]models.LatLng, 0, n+1)
	for i := 0; i < n; i++ {
		ring = append(ring, DestinationPoint(center, float64(i)*360/float64(n), radiusMeters))
	}
	return append(ring, ring[0])
}
