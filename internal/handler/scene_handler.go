package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/render"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/internal/telemetry"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// SceneHandler serves the rendered map scene and accepts viewport changes
type SceneHandler struct {
	tracking *service.TrackingService
}

// NewSceneHandler creates a new scene handler
func NewSceneHandler(tracking *service.TrackingService) *SceneHandler {
	return &SceneHandler{tracking: tracking}
}

// GetScene handles GET /api/v1/scene. The body is a bare GeoJSON
// FeatureCollection so map clients can load it as a source directly.
func (h *SceneHandler) GetScene(c *gin.Context) {
	vp, err := bindViewport(c, h.tracking.Viewport())
	if err != nil {
		response.BadRequest(c, "Invalid viewport: "+err.Error())
		return
	}

	fc := render.EncodeScene(h.tracking.Scene(vp))
	data, err := fc.MarshalJSON()
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// ViewportRequest is either a center and zoom or explicit bounds
type ViewportRequest struct {
	Center    *models.LatLng `json:"center"`
	SouthWest *models.LatLng `json:"boundsSouthWest"`
	NorthEast *models.LatLng `json:"boundsNorthEast"`
	Zoom      *float64       `json:"zoom" binding:"required,min=0,max=30"`
}

// GetViewport handles GET /api/v1/viewport
func (h *SceneHandler) GetViewport(c *gin.Context) {
	response.Success(c, h.tracking.Viewport())
}

// SetViewport handles PUT /api/v1/viewport
func (h *SceneHandler) SetViewport(c *gin.Context) {
	var req ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid viewport: "+err.Error())
		return
	}

	for _, p := range []*models.LatLng{req.Center, req.SouthWest, req.NorthEast} {
		if p != nil && !telemetry.ValidCoordinates(p.Lat, p.Lng) {
			response.BadRequest(c, "Invalid viewport: coordinates out of range")
			return
		}
	}

	switch {
	case req.Center != nil:
		h.tracking.SetViewportCenter(*req.Center, *req.Zoom)
	case req.SouthWest != nil && req.NorthEast != nil:
		h.tracking.SetViewport(models.Viewport{SouthWest: *req.SouthWest, NorthEast: *req.NorthEast, Zoom: *req.Zoom})
	default:
		response.BadRequest(c, "Invalid viewport: center or both bounds required")
		return
	}
	response.Success(c, h.tracking.Viewport())
}

// FitViewport handles POST /api/v1/viewport/fit
func (h *SceneHandler) FitViewport(c *gin.Context) {
	vp, ok := h.tracking.FitToFleet()
	if !ok {
		response.NotFound(c, "No tracked entities to fit")
		return
	}
	response.Success(c, vp)
}
