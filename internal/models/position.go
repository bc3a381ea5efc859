package models

import (
	"encoding/json"
	"time"
)

// RawEvent is a decoded telemetry payload of unknown shape
type RawEvent map[string]any

// LatLng is a geographic coordinate in degrees
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"latitude"`
	Lng float64 `json:"lng" yaml:"lng" validate:"longitude"`
}

// NormalizedPosition is the canonical position record produced from a RawEvent.
// Values are never mutated once produced; a later event for the same entity
// supersedes the previous record.
type NormalizedPosition struct {
	EntityID   string    `json:"entityId"`
	Timestamp  time.Time `json:"timestampUtc"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`    // Degrees from north
	Altitude   *float64  `json:"altitude,omitempty"`   // Meters
	Battery    *float64  `json:"battery,omitempty"`    // Percent
	Satellites *int      `json:"satellites,omitempty"` // Satellites in view
}

// LatLng returns the coordinate part of the position
func (p NormalizedPosition) LatLng() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// TrailPoint is a reduced copy of a NormalizedPosition kept in a trail
type TrailPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestampUtc"`
}

// Trail is the recent position history of one entity, oldest first
type Trail struct {
	EntityID string       `json:"entityId"`
	Points   []TrailPoint `json:"points"`
}

// AnimationState describes the interpolation between two rendered points
type AnimationState struct {
	From      LatLng        `json:"from"`
	To        LatLng        `json:"to"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"durationMs"`
	Active    bool          `json:"active"`
}

type animationStateJSON AnimationState

// MarshalJSON writes Duration as whole milliseconds
func (a AnimationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		animationStateJSON
		Duration int64 `json:"durationMs"`
	}{animationStateJSON(a), a.Duration.Milliseconds()})
}

// UnmarshalJSON reads Duration from milliseconds
func (a *AnimationState) UnmarshalJSON(data []byte) error {
	var v struct {
		animationStateJSON
		Duration int64 `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = AnimationState(v.animationStateJSON)
	a.Duration = time.Duration(v.Duration) * time.Millisecond
	return nil
}

// Viewport is the visible map area reported by the rendering layer
type Viewport struct {
	SouthWest LatLng  `json:"boundsSouthWest"`
	NorthEast LatLng  `json:"boundsNorthEast"`
	Zoom      float64 `json:"zoom"`
}

// Center returns the midpoint of the viewport bounds, accounting for
// bounds that cross the antimeridian
func (v Viewport) Center() LatLng {
	east := v.NorthEast.Lng
	if east < v.SouthWest.Lng {
		east += 360
	}
	lng := (v.SouthWest.Lng + east) / 2
	if lng > 180 {
		lng -= 360
	}
	return LatLng{
		Lat: (v.SouthWest.Lat + v.NorthEast.Lat) / 2,
		Lng: lng,
	}
}

// WorldViewport covers the whole map at the given zoom
func WorldViewport(zoom float64) Viewport {
	return Viewport{
		SouthWest: LatLng{Lat: -90, Lng: -180},
		NorthEast: LatLng{Lat: 90, Lng: 180},
		Zoom:      zoom,
	}
}
