package service

import (
	"sort"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/cluster"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/spatial"
	"gonum.org/v1/gonum/stat"
)

// MovingSpeed is the reported speed above which an entity counts as moving
const MovingSpeed = 1.0

// Summary aggregates the latest positions of the whole fleet
func (s *TrackingService) Summary() models.FleetSummary {
	positions := s.Positions()
	return summarize(positions, s.clock.Now().Add(-s.cfg.PruneWindow))
}

func summarize(positions []models.NormalizedPosition, staleBefore time.Time) models.FleetSummary {
	sum := models.FleetSummary{Entities: len(positions)}
	if len(positions) == 0 {
		return sum
	}

	points := make([]models.LatLng, len(positions))
	var speeds []float64
	oldest, newest := positions[0].Timestamp, positions[0].Timestamp
	for i, p := range positions {
		points[i] = p.LatLng()
		if p.Timestamp.Before(staleBefore) {
			sum.Stale++
		}
		if p.Timestamp.Before(oldest) {
			oldest = p.Timestamp
		}
		if p.Timestamp.After(newest) {
			newest = p.Timestamp
		}
		if p.Speed != nil {
			speeds = append(speeds, *p.Speed)
			if *p.Speed > MovingSpeed {
				sum.Moving++
			}
		}
	}
	sum.OldestFix, sum.NewestFix = &oldest, &newest

	if sw, ne, ok := spatial.BoundingBox(points); ok {
		sum.SouthWest, sum.NorthEast = &sw, &ne
	}
	centroid := spatial.Centroid(points)
	sum.Centroid = &centroid

	sum.WithSpeed = len(speeds)
	if len(speeds) > 0 {
		sort.Float64s(speeds)
		sum.MeanSpeed = stat.Mean(speeds, nil)
		sum.MedianSpeed = stat.Quantile(0.5, stat.Empirical, speeds, nil)
		sum.P95Speed = stat.Quantile(0.95, stat.Empirical, speeds, nil)
	}
	return sum
}

// FitToFleet moves the viewport so every entity is visible. It reports
// false when there is nothing to fit.
func (s *TrackingService) FitToFleet() (models.Viewport, bool) {
	sum := s.Summary()
	if sum.SouthWest == nil {
		return models.Viewport{}, false
	}

	bounds := models.Viewport{SouthWest: *sum.SouthWest, NorthEast: *sum.NorthEast}
	zoom := cluster.FitZoom(bounds.SouthWest, bounds.NorthEast,
		s.cfg.ScreenWidth, s.cfg.ScreenHeight, s.cfg.Cluster.TileSize, s.cfg.Cluster.MaxZoom)
	s.SetViewportCenter(bounds.Center(), float64(zoom))
	return s.Viewport(), true
}
