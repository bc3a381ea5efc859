package spatial

import (
	"math"
	"testing"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		p := models.LatLng{Lat: 48.8566, Lng: 2.3522}
		assert.Equal(t, 0.0, DistanceMeters(p, p))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := DistanceMeters(models.LatLng{Lat: 0, Lng: 0}, models.LatLng{Lat: 1, Lng: 0})
		want := EarthRadiusMeters * math.Pi / 180
		assert.InDelta(t, want, d, 1e-6)
	})

	t.Run("paris to london", func(t *testing.T) {
		paris := models.LatLng{Lat: 48.8566, Lng: 2.3522}
		london := models.LatLng{Lat: 51.5074, Lng: -0.1278}
		assert.InDelta(t, 343_500, DistanceMeters(paris, london), 1_000)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := models.LatLng{Lat: -33.86, Lng: 151.2}
		b := models.LatLng{Lat: 35.68, Lng: 139.69}
		assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-6)
	})
}

func TestCircleContains(t *testing.T) {
	center := models.LatLng{Lat: 10, Lng: 20}

	for _, radius := range []float64{0.001, 1, 50, 10_000} {
		assert.True(t, CircleContains(center, center, radius), "center must be contained at radius %v", radius)

		outside := DestinationPoint(center, 37, radius+0.01)
		assert.False(t, CircleContains(outside, center, radius), "radius+eps must not be contained at radius %v", radius)

		inside := DestinationPoint(center, 210, radius*0.5)
		assert.True(t, CircleContains(inside, center, radius))
	}
}

func TestPolygonContains(t *testing.T) {
	square := []models.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}

	assert.True(t, PolygonContains(models.LatLng{Lat: 5, Lng: 5}, square))
	assert.False(t, PolygonContains(models.LatLng{Lat: 15, Lng: 15}, square))
	assert.False(t, PolygonContains(models.LatLng{Lat: 5, Lng: -1}, square))

	t.Run("concave polygon", func(t *testing.T) {
		// U shape opening north
		u := []models.LatLng{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 9}, {Lat: 9, Lng: 9}, {Lat: 9, Lng: 6},
			{Lat: 3, Lng: 6}, {Lat: 3, Lng: 3}, {Lat: 9, Lng: 3}, {Lat: 9, Lng: 0},
		}
		assert.True(t, PolygonContains(models.LatLng{Lat: 6, Lng: 1.5}, u))
		assert.False(t, PolygonContains(models.LatLng{Lat: 6, Lng: 4.5}, u))
		assert.True(t, PolygonContains(models.LatLng{Lat: 1.5, Lng: 4.5}, u))
	})

	t.Run("degenerate polygons never contain", func(t *testing.T) {
		p := models.LatLng{Lat: 0, Lng: 0}
		assert.False(t, PolygonContains(p, nil))
		assert.False(t, PolygonContains(p, []models.LatLng{{Lat: 0, Lng: 0}}))
		assert.False(t, PolygonContains(p, []models.LatLng{{Lat: -1, Lng: -1}, {Lat: 1, Lng: 1}}))
	})
}

func TestBearing(t *testing.T) {
	origin := models.LatLng{Lat: 0, Lng: 0}
	assert.InDelta(t, 0, Bearing(origin, models.LatLng{Lat: 1, Lng: 0}), 1e-9)
	assert.InDelta(t, 90, Bearing(origin, models.LatLng{Lat: 0, Lng: 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(origin, models.LatLng{Lat: -1, Lng: 0}), 1e-9)
	assert.InDelta(t, 270, Bearing(origin, models.LatLng{Lat: 0, Lng: -1}), 1e-9)
}

func TestDestinationPointRoundTrip(t *testing.T) {
	start := models.LatLng{Lat: 52.52, Lng: 13.405}
	end := DestinationPoint(start, 45, 1_000)
	assert.InDelta(t, 1_000, DistanceMeters(start, end), 1e-6)
	assert.InDelta(t, 45, Bearing(start, end), 0.01)
}

func TestCircleRing(t *testing.T) {
	center := models.LatLng{Lat: 1, Lng: 1}
	ring := CircleRing(center, 500, 16)
	require.Len(t, ring, 17)
	assert.Equal(t, ring[0], ring[16])
	for _, p := range ring {
		assert.InDelta(t, 500, DistanceMeters(center, p), 1e-6)
	}
}

func TestBoundingBoxAndCentroid(t *testing.T) {
	_, _, ok := BoundingBox(nil)
	assert.False(t, ok)

	pts := []models.LatLng{{Lat: 1, Lng: 5}, {Lat: -2, Lng: 3}, {Lat: 4, Lng: -1}}
	sw, ne, ok := BoundingBox(pts)
	require.True(t, ok)
	assert.Equal(t, models.LatLng{Lat: -2, Lng: -1}, sw)
	assert.Equal(t, models.LatLng{Lat: 4, Lng: 5}, ne)

	c := Centroid(pts)
	assert.InDelta(t, 1, c.Lat, 1e-12)
	assert.InDelta(t, 7.0/3, c.Lng, 1e-12)
}

func TestPathLength(t *testing.T) {
	assert.Equal(t, 0.0, PathLength(nil))
	pts := []models.LatLng{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 0}, {Lat: 2, Lng: 0}}
	assert.InDelta(t, 2*EarthRadiusMeters*math.Pi/180, PathLength(pts), 1e-6)
}
