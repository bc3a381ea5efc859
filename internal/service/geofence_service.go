package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
	"github.com/sirupsen/logrus"
)

// GeofenceSource supplies geofence definitions owned by an external CRUD layer
type GeofenceSource interface {
	LoadGeofences(ctx context.Context) ([]models.Geofence, error)
}

// GeofenceSink receives the current geofence set
type GeofenceSink interface {
	SetGeofences(fences []models.Geofence)
}

// GeofenceStatus reports the outcome of the latest refresh
type GeofenceStatus struct {
	Count       int       `json:"count"`
	LastRefresh time.Time `json:"lastRefresh"`
	LastError   string    `json:"lastError,omitempty"`
}

// GeofenceService periodically reloads geofence definitions and swaps them
// into the tracking service. A failed load keeps the previous set.
type GeofenceService struct {
	source   GeofenceSource
	sink     GeofenceSink
	interval time.Duration
	clock    timeutil.Clock
	logger   *logrus.Entry

	mu      sync.Mutex
	current []models.Geofence
	status  GeofenceStatus
}

// NewGeofenceService creates a new geofence service
func NewGeofenceService(source GeofenceSource, sink GeofenceSink, interval time.Duration, clock timeutil.Clock, logger *logrus.Logger) *GeofenceService {
	return &GeofenceService{
		source:   source,
		sink:     sink,
		interval: interval,
		clock:    clock,
		logger:   logger.WithField("component", "geofence_service"),
	}
}

// Refresh loads the definitions once and applies them when they changed
func (s *GeofenceService) Refresh(ctx context.Context) error {
	fences, err := s.source.LoadGeofences(ctx)

	s.mu.Lock()
	s.status.LastRefresh = s.clock.Now()
	if err != nil {
		s.status.LastError = err.Error()
		s.mu.Unlock()
		s.logger.WithError(err).Warn("geofence refresh failed, keeping previous definitions")
		return fmt.Errorf("failed to refresh geofences: %w", err)
	}
	s.status.LastError = ""
	s.status.Count = len(fences)
	changed := !reflect.DeepEqual(s.current, fences)
	s.current = fences
	s.mu.Unlock()

	if !changed {
		return nil
	}
	s.sink.SetGeofences(fences)
	s.logger.WithField("count", len(fences)).Info("geofence definitions updated")
	return nil
}

// Run refreshes immediately and then on every interval until ctx ends
func (s *GeofenceService) Run(ctx context.Context) error {
	_ = s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Status returns the outcome of the latest refresh
func (s *GeofenceService) Status() GeofenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
