package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// GeofenceHandler serves the evaluated geofence set
type GeofenceHandler struct {
	tracking *service.TrackingService
	// nil when geofences are not loaded from a source
	refresher *service.GeofenceService
}

// NewGeofenceHandler creates a new geofence handler
func NewGeofenceHandler(tracking *service.TrackingService, refresher *service.GeofenceService) *GeofenceHandler {
	return &GeofenceHandler{tracking: tracking, refresher: refresher}
}

// ListGeofences handles GET /api/v1/geofences
func (h *GeofenceHandler) ListGeofences(c *gin.Context) {
	fences := h.tracking.Geofences()
	if fences == nil {
		fences = []models.Geofence{}
	}
	data := gin.H{
		"geofences": fences,
		"count":     len(fences),
	}
	if h.refresher != nil {
		data["source"] = h.refresher.Status()
	}
	response.Success(c, data)
}

// Refresh handles POST /api/v1/geofences/refresh
func (h *GeofenceHandler) Refresh(c *gin.Context) {
	if h.refresher == nil {
		response.NotFound(c, "No geofence source configured")
		return
	}
	if err := h.refresher.Refresh(c.Request.Context()); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, h.refresher.Status())
}
