package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/internal/spatial"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// PositionHandler serves live entity state
type PositionHandler struct {
	tracking *service.TrackingService
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(tracking *service.TrackingService) *PositionHandler {
	return &PositionHandler{tracking: tracking}
}

// EntityState is the full live view of one entity
type EntityState struct {
	Position  models.NormalizedPosition `json:"position"`
	Rendered  *models.LatLng            `json:"rendered,omitempty"`
	Animation *models.AnimationState    `json:"animation,omitempty"`
	Geofences []string                  `json:"geofences"`
}

// ListPositions handles GET /api/v1/positions
func (h *PositionHandler) ListPositions(c *gin.Context) {
	positions := h.tracking.Positions()
	response.Success(c, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetPosition handles GET /api/v1/positions/:id
func (h *PositionHandler) GetPosition(c *gin.Context) {
	id := c.Param("id")
	pos, ok := h.tracking.Position(id)
	if !ok {
		response.NotFound(c, "Entity not found")
		return
	}

	state := EntityState{
		Position:  pos,
		Geofences: h.tracking.GeofencesContaining(id),
	}
	if rendered, ok := h.tracking.RenderedPosition(id); ok {
		state.Rendered = &rendered
	}
	if anim, ok := h.tracking.Animation(id); ok {
		state.Animation = &anim
	}
	if state.Geofences == nil {
		state.Geofences = []string{}
	}
	response.Success(c, state)
}

// DeletePosition handles DELETE /api/v1/positions/:id
func (h *PositionHandler) DeletePosition(c *gin.Context) {
	if !h.tracking.Remove(c.Param("id")) {
		response.NotFound(c, "Entity not found")
		return
	}
	response.Success(c, nil)
}

// TrailResponse is a trail with its travelled distance
type TrailResponse struct {
	models.Trail
	LengthMeters float64 `json:"lengthMeters"`
}

// GetTrail handles GET /api/v1/trails/:id
func (h *PositionHandler) GetTrail(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.tracking.Position(id); !ok {
		response.NotFound(c, "Entity not found")
		return
	}
	trail := h.tracking.Trail(id)
	if trail.Points == nil {
		trail.Points = []models.TrailPoint{}
	}
	path := make([]models.LatLng, len(trail.Points))
	for i, p := range trail.Points {
		path[i] = models.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	response.Success(c, TrailResponse{Trail: trail, LengthMeters: spatial.PathLength(path)})
}
