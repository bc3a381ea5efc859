package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"gopkg.in/yaml.v3"
)

// geofenceFile is the YAML document layout:
//
//	geofences:
//	  - id: depot
//	    kind: circle
//	    center: {lat: 52.37, lng: 4.89}
//	    radiusMeters: 250
//	    enabled: true
type geofenceFile struct {
	Geofences []models.Geofence `yaml:"geofences"`
}

// GeofenceFileRepository reads geofence definitions exported to a YAML file
type GeofenceFileRepository struct {
	path     string
	validate *validator.Validate
}

// NewGeofenceFileRepository creates a repository over the YAML file at path
func NewGeofenceFileRepository(path string) *GeofenceFileRepository {
	return &GeofenceFileRepository{path: path, validate: validator.New()}
}

// LoadGeofences parses and validates the whole file. Any invalid entry
// fails the load so a half-applied edit never replaces the current set.
func (r *GeofenceFileRepository) LoadGeofences(ctx context.Context) ([]models.Geofence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geofence file: %w", err)
	}
	return ParseGeofences(data, r.validate)
}

// ParseGeofences decodes a YAML geofence document and validates each entry
func ParseGeofences(data []byte, validate *validator.Validate) ([]models.Geofence, error) {
	var doc geofenceFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse geofence file: %w", err)
	}

	seen := make(map[string]bool, len(doc.Geofences))
	for i, f := range doc.Geofences {
		if err := validate.Struct(f); err != nil {
			return nil, fmt.Errorf("invalid geofence #%d (%s): %w", i, f.ID, err)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("invalid geofence #%d: duplicate id %s", i, f.ID)
		}
		seen[f.ID] = true
	}
	return doc.Geofences, nil
}
