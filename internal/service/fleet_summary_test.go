package service

import (
	"testing"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speedEvent(id string, lat, lng, speed float64, ts time.Time) models.RawEvent {
	e := event(id, lat, lng, ts)
	e["speed"] = speed
	return e
}

func TestTrackingService_Summary(t *testing.T) {
	cfg := DefaultTrackingConfig()
	cfg.PruneWindow = time.Minute
	s, _, _ := newTestTracking(t, cfg)

	empty := s.Summary()
	assert.Equal(t, 0, empty.Entities)
	assert.Nil(t, empty.SouthWest)
	assert.Nil(t, empty.Centroid)

	for _, e := range []models.RawEvent{
		speedEvent("v1", 10, 20, 0, t0),
		speedEvent("v2", 12, 22, 5, t0),
		speedEvent("v3", 14, 24, 10, t0.Add(-2*time.Minute)),
		event("v4", 11, 21, t0),
	} {
		_, err := s.Ingest(e)
		require.NoError(t, err)
	}

	sum := s.Summary()
	assert.Equal(t, 4, sum.Entities)
	assert.Equal(t, 1, sum.Stale)
	assert.Equal(t, 2, sum.Moving)
	assert.Equal(t, 3, sum.WithSpeed)
	assert.InDelta(t, 5.0, sum.MeanSpeed, 1e-9)
	assert.Equal(t, 5.0, sum.MedianSpeed)
	assert.Equal(t, 10.0, sum.P95Speed)

	require.NotNil(t, sum.SouthWest)
	require.NotNil(t, sum.NorthEast)
	assert.Equal(t, models.LatLng{Lat: 10, Lng: 20}, *sum.SouthWest)
	assert.Equal(t, models.LatLng{Lat: 14, Lng: 24}, *sum.NorthEast)
	require.NotNil(t, sum.OldestFix)
	assert.True(t, sum.OldestFix.Equal(t0.Add(-2*time.Minute)))
	assert.True(t, sum.NewestFix.Equal(t0))
}

func TestTrackingService_FitToFleet(t *testing.T) {
	s, _, _ := newTestTracking(t, DefaultTrackingConfig())

	_, ok := s.FitToFleet()
	assert.False(t, ok, "nothing to fit without entities")

	_, err := s.Ingest(event("v1", 48.10, 11.50, t0))
	require.NoError(t, err)
	_, err = s.Ingest(event("v2", 48.20, 11.70, t0))
	require.NoError(t, err)

	vp, ok := s.FitToFleet()
	require.True(t, ok)
	assert.Equal(t, vp, s.Viewport())
	assert.Greater(t, vp.Zoom, 0.0)
	assert.Less(t, vp.Zoom, float64(s.cfg.Cluster.MaxZoom))

	for _, p := range []models.LatLng{{Lat: 48.10, Lng: 11.50}, {Lat: 48.20, Lng: 11.70}} {
		assert.GreaterOrEqual(t, p.Lat, vp.SouthWest.Lat)
		assert.LessOrEqual(t, p.Lat, vp.NorthEast.Lat)
		assert.GreaterOrEqual(t, p.Lng, vp.SouthWest.Lng)
		assert.LessOrEqual(t, p.Lng, vp.NorthEast.Lng)
	}
}
