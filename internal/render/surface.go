// Package render defines the backend-agnostic drawing contract and the
// surfaces that implement it.
package render

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrBackendUnavailable is reported when a named backend is unknown or not
// configured
var ErrBackendUnavailable = errors.New("render backend unavailable")

// Snapshotter is implemented by surfaces that keep their last frame for
// polling clients
type Snapshotter interface {
	// Latest returns the last rendered frame, or nil before the first one
	Latest() []byte
	// ContentType is the media type of Latest
	ContentType() string
}

// Surface is a visual backend
type Surface interface {
	// Name returns the backend name used for resolution
	Name() string

	// Available returns nil when the backend is configured and usable
	Available() error

	// Render draws scene. Surfaces must not retain the callbacks of
	// an older scene once a newer one has been rendered.
	Render(ctx context.Context, scene Scene) error
}

// Registry maps backend names to surfaces and always has a fallback
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]Surface
	fallback Surface
	logger   *logrus.Entry
}

// NewRegistry creates a registry whose fallback is also registered under
// its own name
func NewRegistry(fallback Surface, logger *logrus.Logger) *Registry {
	r := &Registry{
		surfaces: make(map[string]Surface),
		fallback: fallback,
		logger:   logger.WithField("component", "render"),
	}
	r.surfaces[fallback.Name()] = fallback
	return r
}

// Register adds or replaces a backend
func (r *Registry) Register(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[s.Name()] = s
}

// Resolve returns the named backend. When it is unknown or unavailable the
// fallback is returned together with an error wrapping
// ErrBackendUnavailable, and a warning is logged. The returned surface is
// always usable.
func (r *Registry) Resolve(name string) (Surface, error) {
	if name == "" {
		return r.fallback, nil
	}

	r.mu.RLock()
	s, ok := r.surfaces[name]
	r.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %q is not registered", ErrBackendUnavailable, name)
	} else if availErr := s.Available(); availErr != nil {
		err = fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, name, availErr)
	} else {
		return s, nil
	}

	r.logger.WithFields(logrus.Fields{
		"requested": name,
		"fallback":  r.fallback.Name(),
	}).WithError(err).Warn("BackendUnavailable: using fallback surface")
	return r.fallback, err
}

// Fallback returns the default surface
func (r *Registry) Fallback() Surface {
	return r.fallback
}

// Names returns the registered backend names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.surfaces))
	for name := range r.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
