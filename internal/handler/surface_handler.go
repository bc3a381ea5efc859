package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/render"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// SurfaceHandler serves the last frame drawn by the selected surface
type SurfaceHandler struct {
	tracking *service.TrackingService
}

// NewSurfaceHandler creates a new surface handler
func NewSurfaceHandler(tracking *service.TrackingService) *SurfaceHandler {
	return &SurfaceHandler{tracking: tracking}
}

// GetSurface handles GET /api/v1/surface. Before the render loop has drawn
// anything the current scene is rendered once on demand.
func (h *SurfaceHandler) GetSurface(c *gin.Context) {
	surface := h.tracking.Surface()
	snap, ok := surface.(render.Snapshotter)
	if !ok {
		name := "none"
		if surface != nil {
			name = surface.Name()
		}
		response.NotFound(c, "Surface "+name+" keeps no frames to poll")
		return
	}

	data := snap.Latest()
	if data == nil {
		if err := h.tracking.RenderNow(c.Request.Context()); err != nil {
			response.Error(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		data = snap.Latest()
	}
	c.Header("X-Render-Surface", surface.Name())
	c.Data(http.StatusOK, snap.ContentType(), data)
}
