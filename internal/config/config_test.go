package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Minute, cfg.Tracking.PruneWindow)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracking.AnimationDuration)
	assert.Equal(t, cluster.DefaultOptions(), cfg.Cluster)
	assert.Equal(t, "geojson", cfg.Render.Backend)
	assert.Equal(t, "none", cfg.Transport.Kind)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Transport.Kafka.Brokers)
	assert.True(t, cfg.Database.ReadOnly)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9000
tracking:
  prune_window: 2m
cluster:
  radius: 80
  max_zoom: 14
transport:
  kind: kafka
  kafka:
    topic: positions
`)
	t.Setenv("FLEET_SERVER_PORT", "9100")
	t.Setenv("FLEET_TRANSPORT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FLEET_LOGGING_FORMAT", "text")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 2*time.Minute, cfg.Tracking.PruneWindow)
	assert.Equal(t, 80.0, cfg.Cluster.Radius)
	assert.Equal(t, 14, cfg.Cluster.MaxZoom)
	assert.Equal(t, 2, cfg.Cluster.MinPoints, "unset keys keep defaults")
	assert.Equal(t, "positions", cfg.Transport.Kafka.Topic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Transport.Kafka.Brokers)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown transport", "transport:\n  kind: carrier-pigeon\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"zero port", "server:\n  port: 0\n"},
		{"nats without subject", "transport:\n  kind: nats\n  nats:\n    subject: \"\"\n"},
		{"file source without path", "geofences:\n  source: file\n  file: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "FLEET_RENDER_BACKEND=mapbox\nFLEET_RENDER_MAPBOX_TOKEN=pk.test\n")
	t.Setenv("FLEET_RENDER_BACKEND", "websocket")
	os.Unsetenv("FLEET_RENDER_MAPBOX_TOKEN")
	t.Cleanup(func() { os.Unsetenv("FLEET_RENDER_MAPBOX_TOKEN") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "websocket", os.Getenv("FLEET_RENDER_BACKEND"), "existing variables are not overridden")
	assert.Equal(t, "pk.test", os.Getenv("FLEET_RENDER_MAPBOX_TOKEN"))
}

func TestGetConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.Equal(t, "", GetConfigPath())

	require.NoError(t, os.MkdirAll("configs", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("configs", "config.yaml"), nil, 0o644))
	assert.Equal(t, filepath.Join("configs", "config.yaml"), GetConfigPath())

	t.Setenv("FLEET_CONFIG_PATH", "/etc/fleet.yaml")
	assert.Equal(t, "/etc/fleet.yaml", GetConfigPath())
}
