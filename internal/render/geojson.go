package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSONName is the name of the default surface
const GeoJSONName = "geojson"

// circleSegments is the number of ring vertices used to approximate circles
const circleSegments = 64

// Feature kinds written to the "kind" property
const (
	KindMarker  = "marker"
	KindTrail   = "trail"
	KindPolygon = "polygon"
	KindCircle  = "circle"
)

// EncodeScene converts a scene into a GeoJSON feature collection. Circles
// become polygon rings and keep their center and radius as properties.
func EncodeScene(scene Scene) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, m := range scene.Markers {
		f := geojson.NewFeature(point(m.Position))
		f.ID = m.ID
		f.Properties["kind"] = KindMarker
		f.Properties["id"] = m.ID
		if m.Icon != "" {
			f.Properties["icon"] = m.Icon
		}
		if m.Label != nil {
			f.Properties["label"] = m.Label
		}
		f.Properties["rotation"] = m.Rotation
		if m.Cluster {
			f.Properties["cluster"] = true
			f.Properties["count"] = m.Count
		}
		fc.Append(f)
	}

	for _, l := range scene.Polylines {
		line := make(orb.LineString, len(l.Positions))
		for i, p := range l.Positions {
			line[i] = point(p)
		}
		f := geojson.NewFeature(line)
		f.ID = l.ID
		f.Properties["kind"] = KindTrail
		f.Properties["id"] = l.ID
		setStyle(f.Properties, l.Style)
		fc.Append(f)
	}

	for _, p := range scene.Polygons {
		f := geojson.NewFeature(orb.Polygon{ring(p.Positions)})
		f.ID = p.ID
		f.Properties["kind"] = KindPolygon
		f.Properties["id"] = p.ID
		setStyle(f.Properties, p.Style)
		fc.Append(f)
	}

	for _, c := range scene.Circles {
		f := geojson.NewFeature(orb.Polygon{ring(spatial.CircleRing(c.Center, c.RadiusMeters, circleSegments))})
		f.ID = c.ID
		f.Properties["kind"] = KindCircle
		f.Properties["id"] = c.ID
		f.Properties["center"] = []float64{c.Center.Lng, c.Center.Lat}
		f.Properties["radiusMeters"] = c.RadiusMeters
		setStyle(f.Properties, c.Style)
		fc.Append(f)
	}

	return fc
}

func point(p models.LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// ring closes the vertex list as GeoJSON requires
func ring(vertices []models.LatLng) orb.Ring {
	r := make(orb.Ring, 0, len(vertices)+1)
	for _, v := range vertices {
		r = append(r, point(v))
	}
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

func setStyle(props geojson.Properties, s Style) {
	if s.FillColor != "" {
		props["fillColor"] = s.FillColor
		props["fillOpacity"] = s.FillOpacity
	}
	if s.StrokeColor != "" {
		props["strokeColor"] = s.StrokeColor
	}
	if s.StrokeWeight > 0 {
		props["strokeWeight"] = s.StrokeWeight
	}
}

// GeoJSONSurface keeps the latest rendered scene as GeoJSON for polling
// clients. It needs no configuration and is always available.
type GeoJSONSurface struct {
	mu     sync.RWMutex
	scene  Scene
	latest []byte
	frames int
}

// NewGeoJSONSurface creates the default surface
func NewGeoJSONSurface() *GeoJSONSurface {
	return &GeoJSONSurface{}
}

// Name implements Surface
func (s *GeoJSONSurface) Name() string { return GeoJSONName }

// Available implements Surface
func (s *GeoJSONSurface) Available() error { return nil }

// Render implements Surface
func (s *GeoJSONSurface) Render(ctx context.Context, scene Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeScene(scene).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode scene: %w", err)
	}

	s.mu.Lock()
	s.scene = scene
	s.latest = data
	s.frames++
	s.mu.Unlock()
	return nil
}

// Latest returns the last rendered feature collection, or nil before the
// first frame
func (s *GeoJSONSurface) Latest() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// ContentType implements Snapshotter
func (s *GeoJSONSurface) ContentType() string { return "application/geo+json" }

// Scene returns the last rendered scene
func (s *GeoJSONSurface) Scene() Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene
}

// Frames returns how many scenes have been rendered
func (s *GeoJSONSurface) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}
