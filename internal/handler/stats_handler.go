package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// StatsHandler reports engine counters
type StatsHandler struct {
	tracking *service.TrackingService
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(tracking *service.TrackingService) *StatsHandler {
	return &StatsHandler{tracking: tracking}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	response.Success(c, h.tracking.Stats())
}

// GetFleetSummary handles GET /api/v1/stats/fleet
func (h *StatsHandler) GetFleetSummary(c *gin.Context) {
	response.Success(c, h.tracking.Summary())
}
