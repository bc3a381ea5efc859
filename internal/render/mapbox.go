package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// MapboxName is the name of the Mapbox GL surface
const MapboxName = "mapbox"

// DefaultMapboxStyle is the base map used when none is configured
const DefaultMapboxStyle = "mapbox://styles/mapbox/streets-v12"

// MapboxDocument is a Mapbox GL style fragment with the scene as GeoJSON
// sources and one layer per feature kind
type MapboxDocument struct {
	AccessToken string                  `json:"accessToken"`
	Style       string                  `json:"style"`
	Center      [2]float64              `json:"center"`
	Zoom        float64                 `json:"zoom"`
	Sources     map[string]MapboxSource `json:"sources"`
	Layers      []MapboxLayer           `json:"layers"`
}

// MapboxSource is a GeoJSON source
type MapboxSource struct {
	Type string                     `json:"type"`
	Data *geojson.FeatureCollection `json:"data"`
}

// MapboxLayer is a style layer; paint values read feature properties
type MapboxLayer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter []any          `json:"filter,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
}

// MapboxSurface builds Mapbox GL documents. It requires an access token.
type MapboxSurface struct {
	token string
	style string

	mu     sync.RWMutex
	latest []byte
}

// NewMapboxSurface creates a Mapbox surface. An empty token leaves it
// unavailable.
func NewMapboxSurface(token, style string) *MapboxSurface {
	if style == "" {
		style = DefaultMapboxStyle
	}
	return &MapboxSurface{token: token, style: style}
}

// Name implements Surface
func (s *MapboxSurface) Name() string { return MapboxName }

// Available implements Surface
func (s *MapboxSurface) Available() error {
	if s.token == "" {
		return errors.New("mapbox access token is not configured")
	}
	return nil
}

// Render implements Surface
func (s *MapboxSurface) Render(ctx context.Context, scene Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Available(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	data, err := json.Marshal(s.document(scene))
	if err != nil {
		return fmt.Errorf("failed to encode mapbox document: %w", err)
	}

	s.mu.Lock()
	s.latest = data
	s.mu.Unlock()
	return nil
}

func (s *MapboxSurface) document(scene Scene) MapboxDocument {
	center := scene.Viewport.Center()
	return MapboxDocument{
		AccessToken: s.token,
		Style:       s.style,
		Center:      [2]float64{center.Lng, center.Lat},
		Zoom:        scene.Viewport.Zoom,
		Sources: map[string]MapboxSource{
			"scene": {Type: "geojson", Data: EncodeScene(scene)},
		},
		Layers: []MapboxLayer{
			{
				ID: "fences-fill", Type: "fill", Source: "scene",
				Filter: []any{"in", "kind", KindPolygon, KindCircle},
				Paint: map[string]any{
					"fill-color":   []any{"coalesce", []any{"get", "fillColor"}, "#3388ff"},
					"fill-opacity": []any{"coalesce", []any{"get", "fillOpacity"}, 0.2},
				},
			},
			{
				ID: "fences-outline", Type: "line", Source: "scene",
				Filter: []any{"in", "kind", KindPolygon, KindCircle},
				Paint: map[string]any{
					"line-color": []any{"coalesce", []any{"get", "strokeColor"}, "#3388ff"},
					"line-width": []any{"coalesce", []any{"get", "strokeWeight"}, 2},
				},
			},
			{
				ID: "trails", Type: "line", Source: "scene",
				Filter: []any{"==", "kind", KindTrail},
				Paint: map[string]any{
					"line-color": []any{"coalesce", []any{"get", "strokeColor"}, "#ff7800"},
					"line-width": []any{"coalesce", []any{"get", "strokeWeight"}, 3},
				},
			},
			{
				ID: "markers", Type: "symbol", Source: "scene",
				Filter: []any{"==", "kind", KindMarker},
				Layout: map[string]any{
					"icon-image":         []any{"coalesce", []any{"get", "icon"}, "vehicle"},
					"icon-rotate":        []any{"get", "rotation"},
					"icon-allow-overlap": true,
					"text-field":         []any{"to-string", []any{"coalesce", []any{"get", "count"}, ""}},
				},
			},
		},
	}
}

// Latest returns the last rendered document, or nil before the first frame
func (s *MapboxSurface) Latest() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// ContentType implements Snapshotter
func (s *MapboxSurface) ContentType() string { return "application/json" }
