package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/cluster"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// ClusterHandler serves marker clusters for a viewport
type ClusterHandler struct {
	tracking *service.TrackingService
}

// NewClusterHandler creates a new cluster handler
func NewClusterHandler(tracking *service.TrackingService) *ClusterHandler {
	return &ClusterHandler{tracking: tracking}
}

// GetClusters handles GET /api/v1/clusters
func (h *ClusterHandler) GetClusters(c *gin.Context) {
	vp, err := bindViewport(c, h.tracking.Viewport())
	if err != nil {
		response.BadRequest(c, "Invalid viewport: "+err.Error())
		return
	}

	nodes := h.tracking.Clusters(vp)
	if nodes == nil {
		nodes = []cluster.Node{}
	}
	response.Success(c, gin.H{
		"viewport": vp,
		"nodes":    nodes,
		"count":    len(nodes),
	})
}

// GetLeaves handles GET /api/v1/clusters/:id/leaves
func (h *ClusterHandler) GetLeaves(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		response.BadRequest(c, "Invalid limit parameter")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.BadRequest(c, "Invalid offset parameter")
		return
	}

	leaves, err := h.tracking.ClusterLeaves(c.Param("id"), limit, offset)
	if err != nil {
		h.clusterError(c, err)
		return
	}
	if leaves == nil {
		leaves = []cluster.Marker{}
	}
	response.Success(c, gin.H{
		"leaves": leaves,
		"count":  len(leaves),
	})
}

// GetExpansionZoom handles GET /api/v1/clusters/:id/expansion-zoom
func (h *ClusterHandler) GetExpansionZoom(c *gin.Context) {
	zoom, err := h.tracking.ClusterExpansionZoom(c.Param("id"))
	if err != nil {
		h.clusterError(c, err)
		return
	}
	response.Success(c, gin.H{"zoom": zoom})
}

func (h *ClusterHandler) clusterError(c *gin.Context, err error) {
	if errors.Is(err, cluster.ErrClusterNotFound) {
		response.NotFound(c, "Cluster not found")
		return
	}
	response.InternalError(c, err.Error())
}
