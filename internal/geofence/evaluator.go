// Package geofence evaluates geofence containment and detects boundary
// crossings between successive observations of an entity.
package geofence

import (
	"sort"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/spatial"
)

// Contains reports whether point lies inside fence. Disabled fences and
// unknown shape kinds contain nothing.
func Contains(point models.LatLng, fence models.Geofence) bool {
	if !fence.Enabled {
		return false
	}
	switch fence.Kind {
	case models.ShapeCircle:
		return spatial.CircleContains(point, fence.Center, fence.RadiusMeters)
	case models.ShapePolygon:
		return spatial.PolygonContains(point, fence.Vertices)
	default:
		return false
	}
}

// ContainingFences returns the ids of every fence containing point, in
// fence order
func ContainingFences(point models.LatLng, fences []models.Geofence) []string {
	var ids []string
	for _, f := range fences {
		if Contains(point, f) {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Watcher remembers per (entity, fence) containment and emits an event
// only when it changes. Not safe for concurrent use; the tracking service
// serializes access.
type Watcher struct {
	fences []models.Geofence
	inside map[string]map[string]bool
}

// NewWatcher creates a watcher with no fences
func NewWatcher() *Watcher {
	return &Watcher{inside: make(map[string]map[string]bool)}
}

// SetFences replaces the watched fences. State for fences that are no
// longer present is forgotten without emitting exits.
func (w *Watcher) SetFences(fences []models.Geofence) {
	keep := make(map[string]bool, len(fences))
	for _, f := range fences {
		keep[f.ID] = true
	}
	for _, state := range w.inside {
		for id := range state {
			if !keep[id] {
				delete(state, id)
			}
		}
	}

	w.fences = make([]models.Geofence, len(fences))
	copy(w.fences, fences)
}

// Fences returns a copy of the watched fences
func (w *Watcher) Fences() []models.Geofence {
	out := make([]models.Geofence, len(w.fences))
	copy(out, w.fences)
	return out
}

// Evaluate tests point against every watched fence and returns the
// transitions since the entity's previous observation. The first
// observation inside a fence is an enter; the first observation outside
// emits nothing.
func (w *Watcher) Evaluate(entityID string, point models.LatLng, at time.Time) []models.ContainmentEvent {
	state := w.inside[entityID]
	if state == nil {
		state = make(map[string]bool)
		w.inside[entityID] = state
	}

	var events []models.ContainmentEvent
	for _, f := range w.fences {
		now := Contains(point, f)
		was := state[f.ID]
		if now == was {
			continue
		}

		transition := models.TransitionExit
		if now {
			transition = models.TransitionEnter
			state[f.ID] = true
		} else {
			delete(state, f.ID)
		}
		events = append(events, models.ContainmentEvent{
			EntityID:   entityID,
			GeofenceID: f.ID,
			Transition: transition,
			At:         at,
		})
	}

	if len(state) == 0 {
		delete(w.inside, entityID)
	}
	return events
}

// Inside returns the sorted ids of the fences entityID was last seen in
func (w *Watcher) Inside(entityID string) []string {
	ids := make([]string, 0, len(w.inside[entityID]))
	for id := range w.inside[entityID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ForgetEntity drops all containment state for entityID
func (w *Watcher) ForgetEntity(entityID string) {
	delete(w.inside, entityID)
}
