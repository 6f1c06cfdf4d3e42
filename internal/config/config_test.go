package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "citypulse", cfg.NATS.Name)
	assert.Empty(t, cfg.Influx.URL, "influx mirror is off unless configured")
	assert.Equal(t, 10*time.Second, cfg.Collector.Interval)
	assert.Equal(t, 20, cfg.Collector.SensorCount)
	assert.Equal(t, 2.5, cfg.Analytics.AnomalyThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SENSOR_COUNT", "5")
	t.Setenv("ANOMALY_THRESHOLD", "3.0")
	t.Setenv("DATA_COLLECTION_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5, cfg.Collector.SensorCount)
	assert.Equal(t, 3.0, cfg.Analytics.AnomalyThreshold)
	assert.Equal(t, 2*time.Second, cfg.Collector.Interval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("DATA_COLLECTION_INTERVAL", "30")
	t.Setenv("ANALYTICS_CACHE_TTL", "300")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Collector.Interval)
	assert.Equal(t, 300*time.Second, cfg.Analytics.CacheTTL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SENSOR_COUNT", "lots")
	t.Setenv("ANOMALY_THRESHOLD", "high")
	t.Setenv("DATA_COLLECTION_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 20, cfg.Collector.SensorCount)
	assert.Equal(t, 2.5, cfg.Analytics.AnomalyThreshold)
	assert.Equal(t, 10*time.Second, cfg.Collector.Interval)
}
