package spatial

import (
	"math"

	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// CircleContains reports whether point lies within radiusMeters of center
func CircleContains(point, center models.LatLng, radiusMeters float64) bool {
	return DistanceMeters(point, center) <= radiusMeters
}

// PolygonContains checks if a point is inside a polygon using ray casting.
// Polygons with fewer than three vertices never contain anything.
func PolygonContains(point models.LatLng, vertices []models.LatLng) bool {
	if len(vertices) < 3 {
		return false
	}

	inside := false
	j := len(vertices) - 1

	for i := 0; i < len(vertices); i++ {
		yi, yj := vertices[i].Lat, vertices[j].Lat
		xi, xj := vertices[i].Lng, vertices[j].Lng
		if ((yi > point.Lat) != (yj > point.Lat)) &&
			(point.Lng < (xj-xi)*(point.Lat-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// Centroid calculates the arithmetic centroid of a set of points
func Centroid(points []models.LatLng) models.LatLng {
	if len(points) == 0 {
		return models.LatLng{}
	}

	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}

	return models.LatLng{
		Lat: sumLat / float64(len(points)),
		Lng: sumLng / float64(len(points)),
	}
}

// BoundingBox calculates the bounding box of a set of points.
// ok is false when points is empty.
func BoundingBox(points []models.LatLng) (sw, ne models.LatLng, ok bool) {
	if len(points) == 0 {
		return models.LatLng{}, models.LatLng{}, false
	}

	sw, ne = points[0], points[0]
	for _, p := range points[1:] {
		sw.Lat = math.Min(sw.Lat, p.Lat)
		sw.Lng = math.Min(sw.Lng, p.Lng)
		ne.Lat = math.Max(ne.Lat, p.Lat)
		ne.Lng = math.Max(ne.Lng, p.Lng)
	}

	return sw, ne, true
}

// PathLength calculates the total length of a path in meters
func PathLength(points []models.LatLng) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceMeters(points[i-1], points[i])
	}
	return total
}
