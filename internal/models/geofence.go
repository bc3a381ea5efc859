package models

import "time"

// ShapeKind identifies the geometry of a geofence
type ShapeKind string

const (
	ShapeCircle  ShapeKind = "circle"
	ShapePolygon ShapeKind = "polygon"
)

// Geofence is a named area supplied by the external geofence CRUD layer.
// Circle fences use Center and RadiusMeters; polygon fences use Vertices.
type Geofence struct {
	ID           string    `json:"id" yaml:"id" validate:"required"`
	Name         string    `json:"name,omitempty" yaml:"name"`
	Kind         ShapeKind `json:"kind" yaml:"kind" validate:"required,oneof=circle polygon"`
	Center       LatLng    `json:"center,omitempty" yaml:"center"`
	RadiusMeters float64   `json:"radiusMeters,omitempty" yaml:"radiusMeters" validate:"gte=0"`
	Vertices     []LatLng  `json:"vertices,omitempty" yaml:"vertices" validate:"dive"`
	Enabled      bool      `json:"enabled" yaml:"enabled"`
}

// Transition is the direction of a geofence boundary crossing
type Transition string

const (
	TransitionEnter Transition = "enter"
	TransitionExit  Transition = "exit"
)

// ContainmentEvent is emitted once per observed boundary crossing
type ContainmentEvent struct {
	EntityID   string     `json:"entityId"`
	GeofenceID string     `json:"geofenceId"`
	Transition Transition `json:"transition"`
	At         time.Time  `json:"at"`
}
