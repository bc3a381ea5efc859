package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/handler"
	"github.com/jengzang/fleet-tracking-go/internal/middleware"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the HTTP API exposes
type Dependencies struct {
	Tracking *service.TrackingService
	// Optional; enables geofence source status and manual refresh
	Geofences *service.GeofenceService
	// Optional; serves GET /api/v1/ws when the websocket surface is in use
	Stream      http.Handler
	IngestLimit *middleware.RateLimiter
	JWTSecret   string
	Logger      *logrus.Logger
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Fleet tracking engine is running",
		})
	})

	telemetryHandler := handler.NewTelemetryHandler(deps.Tracking)
	positionHandler := handler.NewPositionHandler(deps.Tracking)
	clusterHandler := handler.NewClusterHandler(deps.Tracking)
	geofenceHandler := handler.NewGeofenceHandler(deps.Tracking, deps.Geofences)
	sceneHandler := handler.NewSceneHandler(deps.Tracking)
	statsHandler := handler.NewStatsHandler(deps.Tracking)
	surfaceHandler := handler.NewSurfaceHandler(deps.Tracking)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(deps.JWTSecret))
	{
		ingest := []gin.HandlerFunc{telemetryHandler.Ingest}
		if deps.IngestLimit != nil {
			ingest = append([]gin.HandlerFunc{middleware.RateLimit(deps.IngestLimit)}, ingest...)
		}
		api.POST("/telemetry", ingest...)

		positions := api.Group("/positions")
		{
			positions.GET("", positionHandler.ListPositions)
			positions.GET("/:id", positionHandler.GetPosition)
			positions.DELETE("/:id", positionHandler.DeletePosition)
		}
		api.GET("/trails/:id", positionHandler.GetTrail)

		clusters := api.Group("/clusters")
		{
			clusters.GET("", clusterHandler.GetClusters)
			clusters.GET("/:id/leaves", clusterHandler.GetLeaves)
			clusters.GET("/:id/expansion-zoom", clusterHandler.GetExpansionZoom)
		}

		geofences := api.Group("/geofences")
		{
			geofences.GET("", geofenceHandler.ListGeofences)
			geofences.POST("/refresh", geofenceHandler.Refresh)
		}

		api.GET("/scene", sceneHandler.GetScene)
		api.GET("/surface", surfaceHandler.GetSurface)
		api.GET("/viewport", sceneHandler.GetViewport)
		api.PUT("/viewport", sceneHandler.SetViewport)
		api.POST("/viewport/fit", sceneHandler.FitViewport)
		api.GET("/stats", statsHandler.GetStats)
		api.GET("/stats/fleet", statsHandler.GetFleetSummary)

		if deps.Stream != nil {
			api.GET("/ws", gin.WrapH(deps.Stream))
		}
	}

	return r
}
