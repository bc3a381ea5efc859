package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/cluster"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/render"
	"github.com/jengzang/fleet-tracking-go/internal/telemetry"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestTracking(t *testing.T, cfg TrackingConfig) (*TrackingService, *timeutil.MockClock, *render.GeoJSONSurface) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	clock := timeutil.NewMockClock(t0)
	surface := render.NewGeoJSONSurface()
	s := NewTrackingService(cfg, clock, surface, logger)
	t.Cleanup(s.Close)
	return s, clock, surface
}

func event(id string, lat, lng float64, ts time.Time) models.RawEvent {
	return models.RawEvent{"deviceId": id, "latitude": lat, "longitude": lng, "timestamp": ts.Format(time.RFC3339)}
}

func TestTrackingService_EndToEnd(t *testing.T) {
	cfg := DefaultTrackingConfig()
	cfg.PruneWindow = 60 * time.Second
	s, clock, _ := newTestTracking(t, cfg)

	_, err := s.Ingest(event("v1", 10.0, 20.0, t0))
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	_, err = s.Ingest(event("v1", 10.001, 20.001, t0.Add(3*time.Second)))
	require.NoError(t, err)

	pos, ok := s.Position("v1")
	require.True(t, ok)
	assert.Equal(t, 10.001, pos.Lat)
	assert.Equal(t, 20.001, pos.Lng)

	assert.Len(t, s.Trail("v1").Points, 2)

	anim, ok := s.Animation("v1")
	require.True(t, ok)
	assert.True(t, anim.Active)

	clock.Advance(cfg.Motion.Duration)
	rendered, ok := s.RenderedPosition("v1")
	require.True(t, ok)
	assert.Equal(t, models.LatLng{Lat: 10.001, Lng: 20.001}, rendered)
	assert.Equal(t, 0, s.Stats().Animating)
}

func TestTrackingService_RejectedEventsAreCounted(t *testing.T) {
	s, _, _ := newTestTracking(t, DefaultTrackingConfig())

	_, err := s.Ingest(models.RawEvent{"latitude": 1, "longitude": 1})
	assert.ErrorIs(t, err, telemetry.ErrMissingEntityID)

	_, err = s.Ingest(models.RawEvent{"deviceId": "v1", "latitude": 91, "longitude": 1})
	assert.ErrorIs(t, err, telemetry.ErrInvalidCoordinates)

	_, err = s.Ingest(models.RawEvent{"deviceId": "v1", "latitude": "north", "longitude": 1})
	assert.ErrorIs(t, err, telemetry.ErrInvalidCoordinates)

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Rejected)
	assert.Equal(t, int64(1), stats.MissingEntityID)
	assert.Equal(t, int64(2), stats.InvalidCoordinates)
	assert.Equal(t, int64(0), stats.Ingested)
	assert.Equal(t, 0, stats.Entities, "rejected events never reach the store")
}

func TestTrackingService_IngestPayload(t *testing.T) {
	s, _, _ := newTestTracking(t, DefaultTrackingConfig())

	res, err := s.IngestPayload([]byte(`[
		{"deviceId": "a", "lat": 1, "lng": 1},
		{"vehicle": {"id": "b"}, "location": {"coordinates": [2, 2]}},
		{"lat": 3, "lng": 3}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Index)
	b, ok := s.Position("b")
	require.True(t, ok)
	assert.Equal(t, models.LatLng{Lat: 2, Lng: 2}, b.LatLng())

	_, err = s.IngestPayload([]byte(`not json`))
	assert.Error(t, err)
	assert.Equal(t, int64(1), s.Stats().MalformedPayloads)

	res, err = s.IngestPayload([]byte(`[{"deviceId":"d","lat":5,"lng":5},"garbage",42,{"deviceId":"e","lat":6,"lng":6}]`))
	require.NoError(t, err, "one bad element does not drop the batch")
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, 2, res.Errors[1].Index)
	for _, id := range []string{"d", "e"} {
		_, ok := s.Position(id)
		assert.True(t, ok, id)
	}
	assert.Equal(t, int64(2), s.Stats().MalformedEvents)
	assert.Equal(t, int64(1), s.Stats().MalformedPayloads)

	s.HandlePayload(context.Background(), []byte(`{"imei": "c", "latitude": 4, "longitude": 4}`))
	_, ok = s.Position("c")
	assert.True(t, ok)
}

func TestTrackingService_StampsArrivalTime(t *testing.T) {
	s, clock, _ := newTestTracking(t, DefaultTrackingConfig())

	clock.Advance(90 * time.Second)
	pos, err := s.Ingest(models.RawEvent{"deviceId": "v1", "lat": 10, "lng": 20})
	require.NoError(t, err)
	assert.True(t, pos.Timestamp.Equal(t0.Add(90*time.Second)), "got %v", pos.Timestamp)

	stored, ok := s.Position("v1")
	require.True(t, ok)
	assert.Equal(t, pos.Timestamp, stored.Timestamp)

	reported := t0.Add(-time.Minute)
	pos, err = s.Ingest(event("v2", 1, 1, reported))
	require.NoError(t, err)
	assert.True(t, pos.Timestamp.Equal(reported), "reported timestamps are kept")
}

func TestTrackingService_GeofenceTransitions(t *testing.T) {
	s, clock, _ := newTestTracking(t, DefaultTrackingConfig())
	s.SetGeofences([]models.Geofence{{
		ID:      "yard",
		Kind:    models.ShapePolygon,
		Enabled: true,
		Vertices: []models.LatLng{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0},
		},
	}})

	var events []models.ContainmentEvent
	var insideDuringCallback []string
	s.OnContainment(func(e models.ContainmentEvent) {
		events = append(events, e)
		// handlers may call back into the service
		insideDuringCallback = s.GeofencesContaining(e.EntityID)
	})

	_, err := s.Ingest(event("v1", 20, 20, t0))
	require.NoError(t, err)
	assert.Empty(t, events)

	clock.Advance(time.Second)
	_, err = s.Ingest(event("v1", 5, 5, t0.Add(time.Second)))
	require.NoError(t, err)
	_, err = s.Ingest(event("v1", 6, 6, t0.Add(2*time.Second)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEnter, events[0].Transition)
	assert.Equal(t, []string{"yard"}, insideDuringCallback)

	_, err = s.Ingest(event("v1", 15, 15, t0.Add(3*time.Second)))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.TransitionExit, events[1].Transition)
	assert.Equal(t, t0.Add(3*time.Second), events[1].At)
	assert.Equal(t, int64(2), s.Stats().ContainmentEvents)
}

func TestTrackingService_RemoveForgetsEverywhere(t *testing.T) {
	s, clock, _ := newTestTracking(t, DefaultTrackingConfig())
	_, _ = s.Ingest(event("v1", 1, 1, t0))
	_, _ = s.Ingest(event("v1", 2, 2, t0.Add(time.Second)))

	assert.True(t, s.Remove("v1"))
	assert.False(t, s.Remove("v1"))

	_, ok := s.Position("v1")
	assert.False(t, ok)
	assert.Empty(t, s.Trail("v1").Points)
	_, ok = s.RenderedPosition("v1")
	assert.False(t, ok)
	assert.Empty(t, s.Clusters(models.WorldViewport(3)))

	clock.Advance(time.Minute)
	assert.Equal(t, 0, clock.Pending(), "animation ticks cancelled")
}

func TestTrackingService_SceneAndClusters(t *testing.T) {
	s, clock, _ := newTestTracking(t, DefaultTrackingConfig())
	s.SetGeofences([]models.Geofence{
		{ID: "depot", Kind: models.ShapeCircle, Center: models.LatLng{Lat: 10, Lng: 20}, RadiusMeters: 500, Enabled: true},
		{ID: "old", Kind: models.ShapeCircle, Center: models.LatLng{Lat: 0, Lng: 0}, RadiusMeters: 500},
		{ID: "broken", Kind: models.ShapePolygon, Enabled: true, Vertices: []models.LatLng{{Lat: 0, Lng: 0}}},
	})
	s.SetMarkerDecorator(func(pos models.NormalizedPosition) (string, any) {
		return "truck", pos.EntityID
	})

	_, _ = s.Ingest(event("a", 9.999, 19.999, t0))
	_, _ = s.Ingest(event("b", 10.00001, 20.00001, t0))
	clock.Advance(time.Second)
	_, _ = s.Ingest(event("a", 10, 20, t0.Add(time.Second)))
	clock.Advance(DefaultTrackingConfig().Motion.Duration)

	t.Run("dense view shows one cluster", func(t *testing.T) {
		scene := s.Scene(models.WorldViewport(5))
		require.Len(t, scene.Markers, 1)
		assert.True(t, scene.Markers[0].Cluster)
		assert.Equal(t, 2, scene.Markers[0].Count)
		assert.Empty(t, scene.Polylines, "clustered entities draw no trails")
		require.Len(t, scene.Circles, 1, "disabled fences are not drawn")
		assert.Equal(t, "depot", scene.Circles[0].ID)
		assert.Empty(t, scene.Polygons, "degenerate polygons are not drawn")

		leaves, err := s.ClusterLeaves(scene.Markers[0].ID, 10, 0)
		require.NoError(t, err)
		assert.Len(t, leaves, 2)

		scene.Click(scene.Markers[0].ID)
		zoom, err := s.ClusterExpansionZoom(scene.Markers[0].ID)
		require.NoError(t, err)
		assert.Equal(t, float64(zoom), s.Viewport().Zoom, "cluster click zooms to the expansion zoom")
	})

	t.Run("expanded view shows decorated markers and trails", func(t *testing.T) {
		scene := s.Scene(s.Viewport())
		require.Len(t, scene.Markers, 2)
		a := scene.Markers[0]
		assert.Equal(t, "a", a.ID)
		assert.False(t, a.Cluster)
		assert.Equal(t, "truck", a.Icon)
		assert.Equal(t, "a", a.Label)
		assert.Equal(t, models.LatLng{Lat: 10, Lng: 20}, a.Position)
		assert.InDelta(t, 45, a.Rotation, 1, "rotation follows the last trail segment")

		require.Len(t, scene.Polylines, 1)
		assert.Equal(t, "trail:a", scene.Polylines[0].ID)

		var clicked string
		s.OnMarkerClick(func(id string) { clicked = id })
		assert.True(t, scene.Click("b"))
		assert.Equal(t, "b", clicked)
	})

	t.Run("viewport callback updates the viewport", func(t *testing.T) {
		scene := s.Scene(s.Viewport())
		scene.ChangeViewport(models.LatLng{Lat: 48, Lng: 2}, 11)
		vp := s.Viewport()
		assert.Equal(t, 11.0, vp.Zoom)
		assert.InDelta(t, 2, vp.Center().Lng, 1e-6)
	})
}

func TestTrackingService_ClusterRebuildDoesNotBlockIngest(t *testing.T) {
	s, _, _ := newTestTracking(t, DefaultTrackingConfig())
	_, err := s.Ingest(event("a", 10, 20, t0))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int32
	s.build = func(markers []cluster.Marker, opts cluster.Options) *cluster.Index {
		if builds.Add(1) == 1 {
			close(entered)
			<-release
		}
		return cluster.Build(markers, opts)
	}

	queried := make(chan []cluster.Node)
	go func() { queried <- s.Clusters(models.WorldViewport(3)) }()
	<-entered

	ingested := make(chan error)
	go func() {
		_, err := s.Ingest(event("b", -30, 100, t0))
		ingested <- err
	}()
	select {
	case err := <-ingested:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest waited for the cluster build")
	}
	assert.Equal(t, 2, s.Stats().Entities)

	close(release)
	assert.Len(t, <-queried, 1, "the in-flight build saw the earlier marker set")
	assert.Len(t, s.Clusters(models.WorldViewport(3)), 2, "the next query rebuilds")
	assert.Equal(t, int32(2), builds.Load())
	s.Clusters(models.WorldViewport(3))
	assert.Equal(t, int32(2), builds.Load(), "an unchanged marker set is not rebuilt")
}

func TestTrackingService_RenderNow(t *testing.T) {
	s, _, surface := newTestTracking(t, DefaultTrackingConfig())
	_, _ = s.Ingest(event("v1", 1, 1, t0))
	assert.True(t, s.Dirty())

	require.NoError(t, s.RenderNow(context.Background()))
	assert.Equal(t, 1, surface.Frames())
	assert.NotNil(t, surface.Latest())
	assert.Equal(t, int64(1), s.Stats().FramesRendered)
	assert.Equal(t, render.GeoJSONName, s.Stats().Surface)
}

func TestTrackingService_RunRenderLoop(t *testing.T) {
	s, _, surface := newTestTracking(t, DefaultTrackingConfig())
	_, _ = s.Ingest(event("v1", 1, 1, t0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunRenderLoop(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return surface.Frames() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
