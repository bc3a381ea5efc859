// Package trail keeps a time-windowed position history per entity.
package trail

import (
	"sort"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
)

// DefaultPruneWindow is used when a buffer is created with a non-positive window
const DefaultPruneWindow = 5 * time.Minute

// Buffer stores the recent trail of every entity. Like the live store it
// is not safe for concurrent use.
type Buffer struct {
	pruneWindow time.Duration
	maxPoints   int
	clock       timeutil.Clock
	trails      map[string][]models.TrailPoint
}

// Option configures a Buffer
type Option func(*Buffer)

// WithMaxPoints caps each trail at n points, dropping the oldest first.
// Zero means unlimited.
func WithMaxPoints(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxPoints = n
		}
	}
}

// New creates a trail buffer keeping points newer than now-pruneWindow
func New(pruneWindow time.Duration, clock timeutil.Clock, opts ...Option) *Buffer {
	if pruneWindow <= 0 {
		pruneWindow = DefaultPruneWindow
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	b := &Buffer{
		pruneWindow: pruneWindow,
		clock:       clock,
		trails:      make(map[string][]models.TrailPoint),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PruneWindow returns the configured history window
func (b *Buffer) PruneWindow() time.Duration {
	return b.pruneWindow
}

// Record appends pos to the entity's trail when its coordinates differ
// exactly from the last point. Points not newer than the last point are
// skipped so the trail stays strictly increasing in time. It reports
// whether a point was appended.
func (b *Buffer) Record(entityID string, pos models.NormalizedPosition) bool {
	points := b.trails[entityID]
	appended := false

	if n := len(points); n == 0 ||
		(points[n-1].Lat != pos.Lat || points[n-1].Lng != pos.Lng) && pos.Timestamp.After(points[n-1].Timestamp) {
		points = append(points, models.TrailPoint{
			Lat:       pos.Lat,
			Lng:       pos.Lng,
			Timestamp: pos.Timestamp,
		})
		appended = true
	}

	points = b.prune(points)
	if len(points) == 0 {
		delete(b.trails, entityID)
	} else {
		b.trails[entityID] = points
	}
	return appended
}

// prune drops leading points older than now-pruneWindow and enforces the
// point cap
func (b *Buffer) prune(points []models.TrailPoint) []models.TrailPoint {
	cutoff := b.clock.Now().Add(-b.pruneWindow)
	drop := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(cutoff)
	})
	if b.maxPoints > 0 && len(points)-drop > b.maxPoints {
		drop = len(points) - b.maxPoints
	}
	if drop == 0 {
		return points
	}
	// Copy down so the backing array does not grow without bound
	kept := make([]models.TrailPoint, len(points)-drop)
	copy(kept, points[drop:])
	return kept
}

// Get returns a snapshot of the entity's trail. Later updates never
// mutate a returned trail.
func (b *Buffer) Get(entityID string) models.Trail {
	points := b.prune(b.trails[entityID])
	if len(points) == 0 {
		delete(b.trails, entityID)
		return models.Trail{EntityID: entityID, Points: []models.TrailPoint{}}
	}
	b.trails[entityID] = points

	snapshot := make([]models.TrailPoint, len(points))
	copy(snapshot, points)
	return models.Trail{EntityID: entityID, Points: snapshot}
}

// Remove forgets the entity's trail
func (b *Buffer) Remove(entityID string) {
	delete(b.trails, entityID)
}

// Entities returns the ids with a non-empty trail, sorted
func (b *Buffer) Entities() []string {
	ids := make([]string, 0, len(b.trails))
	for id := range b.trails {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
