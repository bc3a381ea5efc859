package models

import "time"

// FleetSummary describes the current spread and motion of the fleet
type FleetSummary struct {
	Entities int `json:"entities"`
	// Entities whose last fix is older than the trail prune window
	Stale int `json:"stale"`
	// Entities reporting a speed above the moving threshold
	Moving      int     `json:"moving"`
	WithSpeed   int     `json:"withSpeed"`
	MeanSpeed   float64 `json:"meanSpeed"`
	MedianSpeed float64 `json:"medianSpeed"`
	P95Speed    float64 `json:"p95Speed"`
	// Bounds and centroid are omitted for an empty fleet
	SouthWest *LatLng    `json:"boundsSouthWest,omitempty"`
	NorthEast *LatLng    `json:"boundsNorthEast,omitempty"`
	Centroid  *LatLng    `json:"centroid,omitempty"`
	OldestFix *time.Time `json:"oldestFix,omitempty"`
	NewestFix *time.Time `json:"newestFix,omitempty"`
}
