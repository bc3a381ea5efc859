// Package livestore keeps the latest NormalizedPosition per tracked entity
// and notifies subscribers of every overwrite.
//
// A Store is not safe for concurrent use. It assumes a single event loop;
// callers running several goroutines must serialize access themselves.
package livestore

import (
	"fmt"
	"sort"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Subscriber is called after every Apply with the stored position
type Subscriber func(entityID string, pos models.NormalizedPosition)

// RemoveListener is called after an entity is removed
type RemoveListener func(entityID string)

type subscription struct {
	id int
	fn Subscriber
}

// Store is the keyed current-state table, one record per entity
type Store struct {
	logger    *logrus.Entry
	positions map[string]models.NormalizedPosition
	subs      []subscription
	removals  []RemoveListener
	nextID    int
	faults    int
}

// New creates an empty store. It should be constructed once at subsystem
// startup and passed to the components that read it.
func New(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		logger:    logger.WithField("component", "livestore"),
		positions: make(map[string]models.NormalizedPosition),
	}
}

// Apply overwrites the record for pos.EntityID and notifies subscribers.
// Arrival order wins: an event with an older timestamp still overwrites.
func (s *Store) Apply(pos models.NormalizedPosition) {
	s.positions[pos.EntityID] = pos

	// Iterate over a copy so subscribers may unsubscribe during delivery
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		s.deliver(sub, pos)
	}
}

func (s *Store) deliver(sub subscription, pos models.NormalizedPosition) {
	defer func() {
		if r := recover(); r != nil {
			s.faults++
			s.logger.WithFields(logrus.Fields{
				"entity_id":     pos.EntityID,
				"subscriber_id": sub.id,
				"fault":         fmt.Sprint(r),
			}).Error("SubscriberFault: subscriber panicked, isolated")
		}
	}()
	sub.fn(pos.EntityID, pos)
}

// Get returns the latest position for entityID
func (s *Store) Get(entityID string) (models.NormalizedPosition, bool) {
	pos, ok := s.positions[entityID]
	return pos, ok
}

// Subscribe registers fn for every future Apply. The returned function
// removes the subscription; calling it more than once is a no-op.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// OnRemove registers fn to be called after Remove drops an entity
func (s *Store) OnRemove(fn RemoveListener) {
	s.removals = append(s.removals, fn)
}

// Remove drops the record for entityID. It reports whether a record existed.
func (s *Store) Remove(entityID string) bool {
	if _, ok := s.positions[entityID]; !ok {
		return false
	}
	delete(s.positions, entityID)
	for _, fn := range s.removals {
		s.notifyRemoval(fn, entityID)
	}
	return true
}

func (s *Store) notifyRemoval(fn RemoveListener, entityID string) {
	defer func() {
		if r := recover(); r != nil {
			s.faults++
			s.logger.WithFields(logrus.Fields{
				"entity_id": entityID,
				"fault":     fmt.Sprint(r),
			}).Error("SubscriberFault: remove listener panicked, isolated")
		}
	}()
	fn(entityID)
}

// Snapshot returns every stored position ordered by entity id
func (s *Store) Snapshot() []models.NormalizedPosition {
	out := make([]models.NormalizedPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Len returns the number of tracked entities
func (s *Store) Len() int {
	return len(s.positions)
}

// Faults returns how many subscriber panics have been isolated
func (s *Store) Faults() int {
	return s.faults
}

// Close drops all subscriptions and records
func (s *Store) Close() {
	s.subs = nil
	s.removals = nil
	s.positions = make(map[string]models.NormalizedPosition)
}
