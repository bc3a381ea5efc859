package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/sirupsen/logrus"
)

// GeofenceRepository reads geofence definitions from the CRUD layer's
// SQLite table
type GeofenceRepository struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewGeofenceRepository creates a new geofence repository
func NewGeofenceRepository(db *sql.DB, logger *logrus.Logger) *GeofenceRepository {
	return &GeofenceRepository{
		db:     db,
		logger: logger.WithField("component", "geofence_repository"),
	}
}

// LoadGeofences returns every geofence ordered by id. Rows that cannot be
// decoded are skipped with a warning.
func (r *GeofenceRepository) LoadGeofences(ctx context.Context) ([]models.Geofence, error) {
	query := `SELECT id, name, kind, center_lat, center_lng, radius_m, vertices_json, enabled
		FROM geofences ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query geofences: %w", err)
	}
	defer rows.Close()

	var fences []models.Geofence
	for rows.Next() {
		var (
			f             models.Geofence
			kind          string
			lat, lng, rad sql.NullFloat64
			vertices      sql.NullString
			enabled       bool
		)
		if err := rows.Scan(&f.ID, &f.Name, &kind, &lat, &lng, &rad, &vertices, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}

		f.Kind = models.ShapeKind(kind)
		f.Center = models.LatLng{Lat: lat.Float64, Lng: lng.Float64}
		f.RadiusMeters = rad.Float64
		f.Enabled = enabled

		if vertices.Valid && vertices.String != "" {
			if err := json.Unmarshal([]byte(vertices.String), &f.Vertices); err != nil {
				r.logger.WithError(err).WithField("geofence", f.ID).Warn("skipping geofence with malformed vertices")
				continue
			}
		}
		fences = append(fences, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate geofences: %w", err)
	}
	return fences, nil
}
