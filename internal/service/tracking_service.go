package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/cluster"
	"github.com/jengzang/fleet-tracking-go/internal/geofence"
	"github.com/jengzang/fleet-tracking-go/internal/livestore"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/motion"
	"github.com/jengzang/fleet-tracking-go/internal/render"
	"github.com/jengzang/fleet-tracking-go/internal/spatial"
	"github.com/jengzang/fleet-tracking-go/internal/telemetry"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
	"github.com/jengzang/fleet-tracking-go/internal/trail"
	"github.com/sirupsen/logrus"
)

// TrackingConfig configures the tracking pipeline
type TrackingConfig struct {
	PruneWindow    time.Duration
	MaxTrailPoints int
	Motion         motion.Config
	Cluster        cluster.Options
	// Screen size used to derive viewport bounds from a center and zoom
	ScreenWidth  float64
	ScreenHeight float64
	TrailStyle   render.Style
	FenceStyle   render.Style
}

// DefaultTrackingConfig returns the standard pipeline settings
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		PruneWindow: trail.DefaultPruneWindow,
		Motion: motion.Config{
			Duration:      motion.DefaultDuration,
			FrameInterval: motion.DefaultFrameInterval,
		},
		Cluster:      cluster.DefaultOptions(),
		ScreenWidth:  1280,
		ScreenHeight: 800,
		TrailStyle:   render.Style{StrokeColor: "#ff7800", StrokeWeight: 3},
		FenceStyle:   render.Style{FillColor: "#3388ff", FillOpacity: 0.2, StrokeColor: "#3388ff", StrokeWeight: 2},
	}
}

// MarkerDecorator supplies the opaque icon and label of an entity marker
type MarkerDecorator func(pos models.NormalizedPosition) (icon string, label any)

// ContainmentHandler receives geofence transitions
type ContainmentHandler func(event models.ContainmentEvent)

// TrackingService wires the normalizer, live store, trail buffer, motion
// interpolator, geofence watcher, cluster index and render surface into
// one pipeline. Telemetry, animation ticks and viewport changes arrive on
// different goroutines; mu serializes all access to the components that
// are not safe for concurrent use.
type TrackingService struct {
	cfg        TrackingConfig
	clock      timeutil.Clock
	logger     *logrus.Entry
	normalizer *telemetry.Normalizer
	interp     *motion.Interpolator
	surface    render.Surface

	mu       sync.Mutex
	store    *livestore.Store
	trails   *trail.Buffer
	watcher  *geofence.Watcher
	viewport models.Viewport
	// markerGen counts marker set changes; index was built at indexGen
	markerGen uint64
	index     *cluster.Index
	indexGen  uint64
	decorate  MarkerDecorator
	pending   []models.ContainmentEvent
	onEvent   []ContainmentHandler
	onClick   []func(entityID string)
	stats     models.TrackingStats

	// buildMu serializes index rebuilds, which run without mu held
	buildMu sync.Mutex
	build   func([]cluster.Marker, cluster.Options) *cluster.Index

	// set by animation frames and state changes, cleared by the render loop
	dirty atomic.Bool
}

// NewTrackingService constructs the pipeline. It should be created once at
// startup and closed on shutdown.
func NewTrackingService(cfg TrackingConfig, clock timeutil.Clock, surface render.Surface, logger *logrus.Logger) *TrackingService {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.ScreenWidth <= 0 || cfg.ScreenHeight <= 0 {
		cfg.ScreenWidth, cfg.ScreenHeight = 1280, 800
	}
	cfg.Cluster = clusterOptions(cfg.Cluster)

	s := &TrackingService{
		cfg:        cfg,
		clock:      clock,
		logger:     logger.WithField("component", "tracking"),
		normalizer: telemetry.NewNormalizer(),
		surface:    surface,
		store:      livestore.New(logger),
		trails:     trail.New(cfg.PruneWindow, clock, trail.WithMaxPoints(cfg.MaxTrailPoints)),
		watcher:    geofence.NewWatcher(),
		viewport:   models.WorldViewport(2),
		markerGen:  1,
		build:      cluster.Build,
	}
	s.interp = motion.New(cfg.Motion, clock, func(string, models.LatLng, bool) {
		// frames arrive outside mu; only flag the scene
		s.dirty.Store(true)
	})
	s.stats.Surface = surfaceName(surface)

	s.store.Subscribe(func(id string, pos models.NormalizedPosition) {
		s.trails.Record(id, pos)
	})
	s.store.Subscribe(func(id string, pos models.NormalizedPosition) {
		s.interp.Update(id, pos.LatLng())
	})
	s.store.Subscribe(func(id string, pos models.NormalizedPosition) {
		events := s.watcher.Evaluate(id, pos.LatLng(), pos.Timestamp)
		s.pending = append(s.pending, events...)
	})
	s.store.Subscribe(func(string, models.NormalizedPosition) {
		s.markerGen++
		s.dirty.Store(true)
	})
	s.store.OnRemove(func(id string) {
		s.trails.Remove(id)
		s.interp.Remove(id)
		s.watcher.ForgetEntity(id)
		s.markerGen++
		s.dirty.Store(true)
	})

	return s
}

// clusterOptions fills unset options with defaults while keeping the
// zero MinZoom a caller may rely on
func clusterOptions(o cluster.Options) cluster.Options {
	d := cluster.DefaultOptions()
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.TileSize <= 0 {
		o.TileSize = d.TileSize
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MinPoints <= 0 {
		o.MinPoints = d.MinPoints
	}
	return o
}

func surfaceName(s render.Surface) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

// Ingest normalizes one raw event and applies it. Events without a usable
// timestamp are stamped with the arrival time. Rejected events are logged
// as warnings and counted; the error wraps telemetry.ErrMissingEntityID or
// telemetry.ErrInvalidCoordinates.
func (s *TrackingService) Ingest(raw models.RawEvent) (models.NormalizedPosition, error) {
	pos, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.reject(err)
		return models.NormalizedPosition{}, err
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = s.clock.Now().UTC()
	}

	s.mu.Lock()
	s.store.Apply(pos)
	s.stats.Ingested++
	events := s.takePendingLocked()
	s.mu.Unlock()

	s.emit(events)
	return pos, nil
}

func (s *TrackingService) reject(err error) {
	s.mu.Lock()
	s.stats.Rejected++
	switch {
	case errors.Is(err, telemetry.ErrMissingEntityID):
		s.stats.MissingEntityID++
	case errors.Is(err, telemetry.ErrInvalidCoordinates):
		s.stats.InvalidCoordinates++
	case errors.Is(err, telemetry.ErrMalformedEvent):
		s.stats.MalformedEvents++
	}
	s.mu.Unlock()

	s.logger.WithError(err).Warn("telemetry event rejected")
}

// IngestError describes one rejected event of a payload
type IngestError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResult summarizes a multi-event payload
type IngestResult struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestPayload decodes a transport payload holding one event or an array
// of events and ingests each. err is set only when the payload itself
// cannot be decoded; per-event rejects, including array elements that are
// not objects, are reported in the result.
func (s *TrackingService) IngestPayload(data []byte) (IngestResult, error) {
	events, decodeErrs, err := telemetry.DecodeRawEvents(data)
	if err != nil {
		s.mu.Lock()
		s.stats.MalformedPayloads++
		s.mu.Unlock()
		s.logger.WithError(err).Warn("malformed telemetry payload dropped")
		return IngestResult{}, fmt.Errorf("failed to decode telemetry payload: %w", err)
	}

	var res IngestResult
	for i, raw := range events {
		if err := decodeErrs[i]; err != nil {
			s.reject(err)
			res.Rejected++
			res.Errors = append(res.Errors, IngestError{Index: i, Error: err.Error()})
			continue
		}
		if _, err := s.Ingest(raw); err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, IngestError{Index: i, Error: err.Error()})
			continue
		}
		res.Accepted++
	}
	return res, nil
}

// HandlePayload adapts IngestPayload to the transport handler signature
func (s *TrackingService) HandlePayload(ctx context.Context, data []byte) {
	if ctx.Err() != nil {
		return
	}
	_, _ = s.IngestPayload(data)
}

func (s *TrackingService) takePendingLocked() []models.ContainmentEvent {
	if len(s.pending) == 0 {
		return nil
	}
	events := s.pending
	s.pending = nil
	s.stats.ContainmentEvents += int64(len(events))
	return events
}

// emit delivers transitions without holding mu so handlers may call back
// into the service
func (s *TrackingService) emit(events []models.ContainmentEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	handlers := make([]ContainmentHandler, len(s.onEvent))
	copy(handlers, s.onEvent)
	s.mu.Unlock()

	for _, e := range events {
		s.logger.WithFields(logrus.Fields{
			"entity":     e.EntityID,
			"geofence":   e.GeofenceID,
			"transition": e.Transition,
		}).Info("geofence transition")
		for _, h := range handlers {
			h(e)
		}
	}
}

// OnContainment registers a handler for geofence enter and exit events
func (s *TrackingService) OnContainment(h ContainmentHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = append(s.onEvent, h)
}

// OnMarkerClick registers a handler for clicks on entity markers
func (s *TrackingService) OnMarkerClick(fn func(entityID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick = append(s.onClick, fn)
}

// SetMarkerDecorator sets the source of marker icons and labels
func (s *TrackingService) SetMarkerDecorator(fn MarkerDecorator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decorate = fn
	s.dirty.Store(true)
}

// Positions returns the latest reported position of every entity
func (s *TrackingService) Positions() []models.NormalizedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Position returns the latest reported position of an entity
func (s *TrackingService) Position(entityID string) (models.NormalizedPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(entityID)
}

// RenderedPosition returns where the entity is currently drawn
func (s *TrackingService) RenderedPosition(entityID string) (models.LatLng, bool) {
	return s.interp.Position(entityID)
}

// Animation returns the entity's current animation state
func (s *TrackingService) Animation(entityID string) (models.AnimationState, bool) {
	return s.interp.State(entityID)
}

// Trail returns the entity's recent history
func (s *TrackingService) Trail(entityID string) models.Trail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trails.Get(entityID)
}

// Remove forgets an entity in every component. It reports whether the
// entity was known.
func (s *TrackingService) Remove(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Remove(entityID)
}

// SetGeofences replaces the evaluated geofences
func (s *TrackingService) SetGeofences(fences []models.Geofence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher.SetFences(fences)
	s.dirty.Store(true)
}

// Geofences returns the evaluated geofences
func (s *TrackingService) Geofences() []models.Geofence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher.Fences()
}

// GeofencesContaining returns the ids of the fences the entity is inside
func (s *TrackingService) GeofencesContaining(entityID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher.Inside(entityID)
}

// currentIndex returns the cluster index, rebuilding it when the marker
// set changed since the last build. The build runs without mu so ingest
// is never blocked by clustering.
func (s *TrackingService) currentIndex() *cluster.Index {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	s.mu.Lock()
	if s.index != nil && s.indexGen == s.markerGen {
		idx := s.index
		s.mu.Unlock()
		return idx
	}
	gen := s.markerGen
	positions := s.store.Snapshot()
	s.mu.Unlock()

	markers := make([]cluster.Marker, len(positions))
	for i, p := range positions {
		markers[i] = cluster.Marker{ID: p.EntityID, Position: p.LatLng(), Payload: p}
	}
	idx := s.build(markers, s.cfg.Cluster)

	s.mu.Lock()
	s.index, s.indexGen = idx, gen
	s.mu.Unlock()
	return idx
}

// Clusters returns the clusters and single markers visible in vp
func (s *TrackingService) Clusters(vp models.Viewport) []cluster.Node {
	return s.currentIndex().Query(vp)
}

// ClusterLeaves returns the entities under a cluster
func (s *TrackingService) ClusterLeaves(clusterID string, limit, offset int) ([]cluster.Marker, error) {
	return s.currentIndex().Leaves(clusterID, limit, offset)
}

// ClusterExpansionZoom returns the zoom at which a cluster splits
func (s *TrackingService) ClusterExpansionZoom(clusterID string) (int, error) {
	return s.currentIndex().ExpansionZoom(clusterID)
}

// SetViewport replaces the viewport used for rendering
func (s *TrackingService) SetViewport(vp models.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = vp
	s.dirty.Store(true)
}

// SetViewportCenter derives the viewport from a center and zoom on the
// configured screen size. Surfaces report pan and zoom through it.
func (s *TrackingService) SetViewportCenter(center models.LatLng, zoom float64) {
	s.SetViewport(cluster.ViewportAround(center, zoom, s.cfg.ScreenWidth, s.cfg.ScreenHeight, s.cfg.Cluster.TileSize))
}

// Viewport returns the viewport used for rendering
func (s *TrackingService) Viewport() models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Scene assembles everything visible in vp: clustered markers drawn at
// their interpolated positions, trails of unclustered entities and every
// enabled geofence
func (s *TrackingService) Scene(vp models.Viewport) render.Scene {
	rendered := s.interp.Positions()
	nodes := s.currentIndex().Query(vp)

	s.mu.Lock()
	defer s.mu.Unlock()

	scene := render.Scene{
		Viewport:  vp,
		Markers:   []render.Marker{},
		Polylines: []render.Polyline{},
		Polygons:  []render.Polygon{},
		Circles:   []render.Circle{},
		Callbacks: render.Callbacks{OnViewportChange: s.SetViewportCenter},
	}

	for _, node := range nodes {
		if node.Cluster {
			center := node.Position
			scene.Markers = append(scene.Markers, render.Marker{
				ID:       node.ID,
				Position: center,
				Cluster:  true,
				Count:    node.Count,
				OnClick:  func(id string) { s.zoomToCluster(id, center) },
			})
			continue
		}

		pos, _ := node.Payload.(models.NormalizedPosition)
		at, ok := rendered[node.ID]
		if !ok {
			at = node.Position
		}
		m := render.Marker{
			ID:       node.ID,
			Position: at,
			Rotation: s.rotationLocked(pos),
			OnClick:  s.markerClicked,
		}
		if s.decorate != nil {
			m.Icon, m.Label = s.decorate(pos)
		}
		scene.Markers = append(scene.Markers, m)

		if tr := s.trails.Get(node.ID); len(tr.Points) >= 2 {
			line := make([]models.LatLng, len(tr.Points))
			for i, p := range tr.Points {
				line[i] = models.LatLng{Lat: p.Lat, Lng: p.Lng}
			}
			scene.Polylines = append(scene.Polylines, render.Polyline{
				ID:        "trail:" + node.ID,
				Positions: line,
				Style:     s.cfg.TrailStyle,
			})
		}
	}

	for _, f := range s.watcher.Fences() {
		if !f.Enabled {
			continue
		}
		switch f.Kind {
		case models.ShapeCircle:
			scene.Circles = append(scene.Circles, render.Circle{
				ID:           f.ID,
				Center:       f.Center,
				RadiusMeters: f.RadiusMeters,
				Style:        s.cfg.FenceStyle,
			})
		case models.ShapePolygon:
			if len(f.Vertices) < 3 {
				continue
			}
			scene.Polygons = append(scene.Polygons, render.Polygon{
				ID:        f.ID,
				Positions: f.Vertices,
				Style:     s.cfg.FenceStyle,
			})
		}
	}

	return scene
}

// rotationLocked prefers the reported heading and otherwise uses the
// bearing of the last trail segment
func (s *TrackingService) rotationLocked(pos models.NormalizedPosition) float64 {
	if pos.Heading != nil {
		return *pos.Heading
	}
	points := s.trails.Get(pos.EntityID).Points
	if n := len(points); n >= 2 {
		from := models.LatLng{Lat: points[n-2].Lat, Lng: points[n-2].Lng}
		to := models.LatLng{Lat: points[n-1].Lat, Lng: points[n-1].Lng}
		return spatial.Bearing(from, to)
	}
	return 0
}

func (s *TrackingService) markerClicked(entityID string) {
	s.mu.Lock()
	handlers := make([]func(string), len(s.onClick))
	copy(handlers, s.onClick)
	s.mu.Unlock()

	for _, h := range handlers {
		h(entityID)
	}
}

// zoomToCluster moves the viewport to where the cluster splits apart
func (s *TrackingService) zoomToCluster(clusterID string, center models.LatLng) {
	zoom, err := s.ClusterExpansionZoom(clusterID)
	if err != nil {
		// the index was rebuilt since the scene was drawn
		s.logger.WithError(err).Debug("stale cluster click")
		return
	}
	s.SetViewportCenter(center, float64(zoom))
}

// Surface returns the render surface the service draws on
func (s *TrackingService) Surface() render.Surface {
	return s.surface
}

// RenderNow draws the current scene on the surface
func (s *TrackingService) RenderNow(ctx context.Context) error {
	if s.surface == nil {
		return fmt.Errorf("%w: no surface configured", render.ErrBackendUnavailable)
	}
	scene := s.Scene(s.Viewport())
	if err := s.surface.Render(ctx, scene); err != nil {
		return fmt.Errorf("failed to render scene: %w", err)
	}
	s.mu.Lock()
	s.stats.FramesRendered++
	s.mu.Unlock()
	return nil
}

// RunRenderLoop redraws the scene every interval while something changed.
// It returns when ctx is done.
func (s *TrackingService) RunRenderLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.dirty.Store(true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.dirty.Swap(false) {
				continue
			}
			if err := s.RenderNow(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warn("render failed")
			}
		}
	}
}

// Dirty reports whether the scene changed since the last render loop pass
func (s *TrackingService) Dirty() bool {
	return s.dirty.Load()
}

// Stats returns a snapshot of the pipeline counters
func (s *TrackingService) Stats() models.TrackingStats {
	animating := s.interp.Active()

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Entities = s.store.Len()
	stats.Trails = len(s.trails.Entities())
	stats.Animating = animating
	stats.Geofences = len(s.watcher.Fences())
	stats.SubscriberFaults = s.store.Faults()
	return stats
}

// Close stops all animations and clears the pipeline
func (s *TrackingService) Close() {
	s.interp.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Close()
}
