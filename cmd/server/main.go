package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jengzang/fleet-tracking-go/internal/api"
	"github.com/jengzang/fleet-tracking-go/internal/config"
	"github.com/jengzang/fleet-tracking-go/internal/database"
	"github.com/jengzang/fleet-tracking-go/internal/middleware"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/jengzang/fleet-tracking-go/internal/motion"
	"github.com/jengzang/fleet-tracking-go/internal/render"
	"github.com/jengzang/fleet-tracking-go/internal/repository"
	"github.com/jengzang/fleet-tracking-go/internal/service"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
	"github.com/jengzang/fleet-tracking-go/internal/transport"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', defaulting to 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func trackingConfig(cfg *config.Config) service.TrackingConfig {
	tc := service.DefaultTrackingConfig()
	tc.PruneWindow = cfg.Tracking.PruneWindow
	tc.MaxTrailPoints = cfg.Tracking.MaxTrailPoints
	tc.Motion = motion.Config{
		Duration:      cfg.Tracking.AnimationDuration,
		FrameInterval: cfg.Tracking.FrameInterval,
	}
	tc.Cluster = cfg.Cluster
	tc.ScreenWidth = cfg.Tracking.ScreenWidth
	tc.ScreenHeight = cfg.Tracking.ScreenHeight
	return tc
}

// geofenceSource opens the configured definitions source; the returned
// closer releases it
func geofenceSource(cfg *config.Config, logger *logrus.Logger) (service.GeofenceSource, func(), error) {
	switch cfg.Geofences.Source {
	case "sqlite":
		db, err := database.Open(database.Config{Path: cfg.Database.Path, ReadOnly: cfg.Database.ReadOnly}, logger)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.Database.ReadOnly {
			if err := database.Migrate(db, logger); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return repository.NewGeofenceRepository(db, logger), func() { db.Close() }, nil
	case "file":
		return repository.NewGeofenceFileRepository(cfg.Geofences.File), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func main() {
	// 加载配置
	if err := config.LoadDotEnv(); err != nil {
		logrus.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	// 渲染后端
	fallback := render.NewGeoJSONSurface()
	ws := render.NewWebSocketSurface(logger)
	registry := render.NewRegistry(fallback, logger)
	registry.Register(ws)
	registry.Register(render.NewMapboxSurface(cfg.Render.MapboxToken, cfg.Render.MapboxStyle))
	surface, _ := registry.Resolve(cfg.Render.Backend)

	tracking := service.NewTrackingService(trackingConfig(cfg), clock, surface, logger)
	defer tracking.Close()
	tracking.OnContainment(func(e models.ContainmentEvent) {
		logger.WithFields(logrus.Fields{
			"component":  "geofence",
			"entityId":   e.EntityID,
			"geofenceId": e.GeofenceID,
			"transition": e.Transition,
		}).Info("geofence transition")
	})

	// 地理围栏
	source, closeSource, err := geofenceSource(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open geofence source: %v", err)
	}
	defer closeSource()

	var geofences *service.GeofenceService
	if source != nil {
		geofences = service.NewGeofenceService(source, tracking, cfg.Geofences.RefreshInterval, clock, logger)
	}

	// 遥测订阅
	feed, err := transport.New(cfg.Transport, logger)
	if err != nil {
		logger.Fatalf("Failed to create telemetry transport: %v", err)
	}
	if err := feed.Subscribe(ctx, tracking.HandlePayload); err != nil {
		logger.Fatalf("Failed to subscribe to %s telemetry: %v", feed.Name(), err)
	}

	deps := api.Dependencies{
		Tracking:    tracking,
		Geofences:   geofences,
		IngestLimit: middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitWindow, clock),
		JWTSecret:   cfg.Auth.JWTSecret,
		Logger:      logger,
	}
	if surface.Name() == render.WebSocketName {
		deps.Stream = ws
	}
	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: api.SetupRouter(deps),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = tracking.RunRenderLoop(ctx, cfg.Tracking.RenderInterval)
	}()
	if geofences != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = geofences.Run(ctx)
		}()
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      server.Addr,
			"surface":   surface.Name(),
			"transport": feed.Name(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}
	if err := feed.Unsubscribe(); err != nil {
		logger.WithError(err).Error("Transport shutdown failed")
	}
	if err := ws.Close(); err != nil {
		logger.WithError(err).Error("Websocket shutdown failed")
	}
	wg.Wait()
}
