package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// TelemetryHandler accepts pushed telemetry over HTTP
type TelemetryHandler struct {
	tracking *service.TrackingService
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(tracking *service.TrackingService) *TelemetryHandler {
	return &TelemetryHandler{tracking: tracking}
}

// Ingest handles POST /api/v1/telemetry. The body is one event object or
// an array of them; 422 is returned when every event was rejected.
func (h *TelemetryHandler) Ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		response.BadRequest(c, "Empty telemetry payload")
		return
	}

	result, err := h.tracking.IngestPayload(body)
	if err != nil {
		response.BadRequest(c, "Malformed telemetry payload")
		return
	}

	if result.Accepted == 0 && result.Rejected > 0 {
		response.Unprocessable(c, "Telemetry rejected", result)
		return
	}
	response.Success(c, result)
}
