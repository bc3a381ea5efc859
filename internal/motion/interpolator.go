// Package motion smooths discrete position updates into continuous,
// cancellable per-entity animations.
//
// Each entity moves through a small state machine:
//
//	Idle --new target--> Animating --progress >= 1--> Idle
//	Animating --new target--> Animating (restart from the current point)
//
// At most one tick is pending per entity. Ticks run on the injected
// clock, so tests drive animations with timeutil.MockClock instead of a
// frame clock. The interpolator only produces rendered positions; it never
// writes back to the live store or the trail buffer.
package motion

import (
	"math"
	"sync"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
)

// Defaults
const (
	DefaultDuration      = 1500 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// FrameFunc receives every rendered position. active is false on the
// final frame of an animation and on snaps.
type FrameFunc func(entityID string, pos models.LatLng, active bool)

// Config holds animation timing
type Config struct {
	Duration      time.Duration
	FrameInterval time.Duration
}

type entityState struct {
	anim     models.AnimationState
	rendered models.LatLng
	pending  timeutil.Timer
	gen      uint64
}

// cancel stops the pending tick. Calling it with nothing pending is a no-op.
func (s *entityState) cancel() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	// A tick already dispatched by a real timer sees a stale generation
	s.gen++
}

// Interpolator animates rendered positions towards reported targets
type Interpolator struct {
	mu       sync.Mutex
	cfg      Config
	clock    timeutil.Clock
	onFrame  FrameFunc
	entities map[string]*entityState
	closed   bool
}

// New creates an interpolator. onFrame may be nil.
func New(cfg Config, clock timeutil.Clock, onFrame FrameFunc) *Interpolator {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if onFrame == nil {
		onFrame = func(string, models.LatLng, bool) {}
	}
	return &Interpolator{
		cfg:      cfg,
		clock:    clock,
		onFrame:  onFrame,
		entities: make(map[string]*entityState),
	}
}

// Update sets a new target for entityID. The first target for an entity
// snaps without animation. A target equal to the point already rendered
// (or already being animated to) changes nothing. Any other target starts
// a new animation from the current interpolated point.
func (i *Interpolator) Update(entityID string, target models.LatLng) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}

	now := i.clock.Now()
	st, ok := i.entities[entityID]
	if !ok {
		i.entities[entityID] = &entityState{
			anim:     models.AnimationState{From: target, To: target, StartTime: now},
			rendered: target,
		}
		i.mu.Unlock()
		i.onFrame(entityID, target, false)
		return
	}

	var from models.LatLng
	if st.anim.Active {
		if target == st.anim.To {
			i.mu.Unlock()
			return
		}
		from, _ = st.positionAt(now)
	} else {
		if target == st.rendered {
			i.mu.Unlock()
			return
		}
		from = st.rendered
	}

	st.cancel()
	st.rendered = from
	st.anim = models.AnimationState{
		From:      from,
		To:        target,
		StartTime: now,
		Duration:  i.cfg.Duration,
		Active:    true,
	}
	i.scheduleLocked(entityID, st, now)
	i.mu.Unlock()
}

// scheduleLocked arms the single pending tick. The last tick is aligned to
// the animation end so the final frame lands exactly on the target.
func (i *Interpolator) scheduleLocked(entityID string, st *entityState, now time.Time) {
	delay := i.cfg.FrameInterval
	if remaining := st.anim.StartTime.Add(st.anim.Duration).Sub(now); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}

	gen := st.gen
	st.pending = i.clock.AfterFunc(delay, func() {
		i.tick(entityID, gen)
	})
}

func (i *Interpolator) tick(entityID string, gen uint64) {
	i.mu.Lock()
	st, ok := i.entities[entityID]
	if i.closed || !ok || st.gen != gen || !st.anim.Active {
		i.mu.Unlock()
		return
	}
	st.pending = nil

	now := i.clock.Now()
	pos, done := st.positionAt(now)
	st.rendered = pos
	if done {
		st.anim.Active = false
	} else {
		i.scheduleLocked(entityID, st, now)
	}
	i.mu.Unlock()

	i.onFrame(entityID, pos, !done)
}

// positionAt computes the eased position at now without changing state
func (s *entityState) positionAt(now time.Time) (models.LatLng, bool) {
	if !s.anim.Active {
		return s.rendered, true
	}
	progress := 1.0
	if s.anim.Duration > 0 {
		progress = math.Min(float64(now.Sub(s.anim.StartTime))/float64(s.anim.Duration), 1)
	}
	if progress >= 1 {
		return s.anim.To, true
	}
	if progress < 0 {
		progress = 0
	}
	return Lerp(s.anim.From, s.anim.To, EaseOutCubic(progress)), false
}

// EaseOutCubic maps linear progress in [0,1] to 1-(1-p)^3
func EaseOutCubic(p float64) float64 {
	inv := 1 - p
	return 1 - inv*inv*inv
}

// Lerp interpolates between two coordinates, taking the short way across
// the antimeridian
func Lerp(from, to models.LatLng, t float64) models.LatLng {
	dLng := to.Lng - from.Lng
	if dLng > 180 {
		dLng -= 360
	} else if dLng < -180 {
		dLng += 360
	}
	lng := from.Lng + dLng*t
	if lng > 180 {
		lng -= 360
	} else if lng < -180 {
		lng += 360
	}
	return models.LatLng{
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Lng: lng,
	}
}

// Position returns the rendered position of entityID at the current time
func (i *Interpolator) Position(entityID string) (models.LatLng, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	st, ok := i.entities[entityID]
	if !ok {
		return models.LatLng{}, false
	}
	pos, _ := st.positionAt(i.clock.Now())
	return pos, true
}

// Positions returns the rendered position of every entity
func (i *Interpolator) Positions() map[string]models.LatLng {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clock.Now()
	out := make(map[string]models.LatLng, len(i.entities))
	for id, st := range i.entities {
		out[id], _ = st.positionAt(now)
	}
	return out
}

// State returns the current animation state of entityID
func (i *Interpolator) State(entityID string) (models.AnimationState, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	st, ok := i.entities[entityID]
	if !ok {
		return models.AnimationState{}, false
	}
	return st.anim, true
}

// Active returns how many entities are currently animating
func (i *Interpolator) Active() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for _, st := range i.entities {
		if st.anim.Active {
			n++
		}
	}
	return n
}

// Remove cancels any pending tick for entityID and forgets it. No further
// frames are delivered for it. Removing twice is a no-op.
func (i *Interpolator) Remove(entityID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if st, ok := i.entities[entityID]; ok {
		st.cancel()
		delete(i.entities, entityID)
	}
}

// Close cancels every pending tick. Later updates are ignored.
func (i *Interpolator) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for id, st := range i.entities {
		st.cancel()
		delete(i.entities, id)
	}
	i.closed = true
}
