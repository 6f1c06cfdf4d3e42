package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/analytics"
	"github.com/Sadiqib0/Citypulse/internal/bus/bustest"
	"github.com/Sadiqib0/Citypulse/internal/models"
	"github.com/Sadiqib0/Citypulse/internal/store"
	"github.com/Sadiqib0/Citypulse/internal/stream"
)

type emptyStore struct{}

func (emptyStore) ListEvents(context.Context, store.EventFilter) ([]models.Event, error) {
	return nil, nil
}
func (emptyStore) ListReadings(context.Context, string, time.Time) ([]models.SensorReading, error) {
	return nil, nil
}
func (emptyStore) CountEvents(context.Context, bool) (int64, error) { return 0, nil }
func (emptyStore) EventCountsByType(context.Context) (map[string]int64, error) {
	return nil, nil
}
func (emptyStore) EventCountsBySeverity(context.Context) (map[string]int64, error) {
	return nil, nil
}
func (emptyStore) CountAlerts(context.Context, bool) (int64, error)     { return 0, nil }
func (emptyStore) AverageReadingValue(context.Context) (float64, error) { return 0, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	engine := analytics.New(emptyStore{}, nil, 2.5, 20, log)
	manager := stream.NewManager(log)
	bridge := stream.NewBridge(bustest.New(), manager, log)
	t.Cleanup(bridge.Close)
	return New(engine, manager, bridge, log)
}

func doRequest(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestOverviewRoute(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, "/api/v1/analytics/overview")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["total_events"])
	assert.Equal(t, float64(20), body["total_sensors"])
}

func TestAnomaliesRouteValidation(t *testing.T) {
	s := newTestServer(t)

	rec, body := doRequest(t, s, "/api/v1/analytics/anomalies/SENSOR_001?lookback_minutes=5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "lookback_minutes")

	rec, body = doRequest(t, s, "/api/v1/analytics/anomalies/SENSOR_001?lookback_minutes=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "integer")
}

func TestAnomaliesRouteDefaults(t *testing.T) {
	s := newTestServer(t)

	// No query parameter: the 60-minute default applies and an empty
	// store yields an empty list, not an error.
	rec, body := doRequest(t, s, "/api/v1/analytics/anomalies/SENSOR_001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["anomalies"])
}

func TestPredictionsRouteValidation(t *testing.T) {
	s := newTestServer(t)

	rec, body := doRequest(t, s, "/api/v1/analytics/predictions/earthquake")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "earthquake")

	rec, _ = doRequest(t, s, "/api/v1/analytics/predictions/traffic?horizon_hours=999")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictionsRouteEmptyHistory(t *testing.T) {
	s := newTestServer(t)

	rec, body := doRequest(t, s, "/api/v1/analytics/predictions/traffic")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["predictions"])
}
