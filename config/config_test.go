package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  journey_events_topic_name: "journey.events"
  driver_positions_topic_name: "driver.position"
redis:
  host: "localhost"
  port: 6379
osrm:
  base_url: "http://localhost:5000"
  timeout_seconds: 10
routebox:
  http_addr: ":8080"
  kafka_consumer_group: "route-api"
  auto_replan_threshold_minutes: 30
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "journey.events", cfg.Kafka.JourneyEventsTopicName)
	require.Equal(t, "driver.position", cfg.Kafka.DriverPositionsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "http://localhost:5000", cfg.OSRM.BaseURL)
	require.Equal(t, ":8080", cfg.RouteBox.HTTPAddr)

	// explicit value kept, unset thresholds defaulted
	require.Equal(t, 30, cfg.RouteBox.AutoReplanThresholdMinutes)
	require.Equal(t, 15, cfg.RouteBox.DelayReasonThresholdMinutes)
	require.Equal(t, 5, cfg.RouteBox.PriorityTieTolerancePct)
	require.Equal(t, 30, cfg.RouteBox.SolveTimeoutSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cfg.yaml")
	require.Error(t, err)
}
