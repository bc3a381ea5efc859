package render

import "github.com/jengzang/fleet-tracking-go/internal/models"

// Style is the fill and stroke styling of a shape
type Style struct {
	FillColor    string  `json:"fillColor,omitempty"`
	FillOpacity  float64 `json:"fillOpacity,omitempty"`
	StrokeColor  string  `json:"strokeColor,omitempty"`
	StrokeWeight float64 `json:"strokeWeight,omitempty"`
}

// ClickFunc is invoked with the id of the clicked element
type ClickFunc func(id string)

// Marker is a point on the map. Icon and Label come from the presentation
// layer and are passed through without interpretation.
type Marker struct {
	ID       string        `json:"id"`
	Position models.LatLng `json:"position"`
	Icon     string        `json:"icon,omitempty"`
	Label    any           `json:"label,omitempty"`
	Rotation float64       `json:"rotation,omitempty"`
	Cluster  bool          `json:"cluster,omitempty"`
	Count    int           `json:"count,omitempty"`
	OnClick  ClickFunc     `json:"-"`
}

// Polyline is an open path, typically an entity trail
type Polyline struct {
	ID        string          `json:"id"`
	Positions []models.LatLng `json:"positions"`
	Style     Style           `json:"style"`
	OnClick   ClickFunc       `json:"-"`
}

// Polygon is a closed area
type Polygon struct {
	ID        string          `json:"id"`
	Positions []models.LatLng `json:"positions"`
	Style     Style           `json:"style"`
	OnClick   ClickFunc       `json:"-"`
}

// Circle is a geodesic circle
type Circle struct {
	ID           string        `json:"id"`
	Center       models.LatLng `json:"center"`
	RadiusMeters float64       `json:"radiusMeters"`
	Style        Style         `json:"style"`
	OnClick      ClickFunc     `json:"-"`
}

// Callbacks receive interaction reported by a surface
type Callbacks struct {
	OnViewportChange func(center models.LatLng, zoom float64)
}

// Scene is everything a surface draws in one frame
type Scene struct {
	Viewport  models.Viewport `json:"viewport"`
	Markers   []Marker        `json:"markers"`
	Polylines []Polyline      `json:"polylines"`
	Polygons  []Polygon       `json:"polygons"`
	Circles   []Circle        `json:"circles"`
	Callbacks Callbacks       `json:"-"`
}

// Click dispatches a click on the element with the given id. It reports
// whether an element with that id exists.
func (s Scene) Click(id string) bool {
	for _, m := range s.Markers {
		if m.ID == id {
			fire(m.OnClick, id)
			return true
		}
	}
	for _, l := range s.Polylines {
		if l.ID == id {
			fire(l.OnClick, id)
			return true
		}
	}
	for _, p := range s.Polygons {
		if p.ID == id {
			fire(p.OnClick, id)
			return true
		}
	}
	for _, c := range s.Circles {
		if c.ID == id {
			fire(c.OnClick, id)
			return true
		}
	}
	return false
}

// ChangeViewport reports a user pan or zoom back to the scene's owner
func (s Scene) ChangeViewport(center models.LatLng, zoom float64) {
	if s.Callbacks.OnViewportChange != nil {
		s.Callbacks.OnViewportChange(center, zoom)
	}
}

func fire(fn ClickFunc, id string) {
	if fn != nil {
		fn(id)
	}
}
