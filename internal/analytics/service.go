package analytics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/models"
	"github.com/Sadiqib0/Citypulse/internal/store"
)

// ErrInvalidInput marks rejected caller input (unknown event type,
// out-of-range parameters). The HTTP layer maps it to a 400.
var ErrInvalidInput = errors.New("analytics: invalid input")

// Parameter bounds for the read surface.
const (
	MinLookbackMinutes = 10
	MaxLookbackMinutes = 1440
	MinHorizonHours    = 1
	MaxHorizonHours    = 168
)

const (
	trafficWindow   = 100
	weatherWindow   = 10
	historyDays     = 7
	maxAffected     = 5
	maxWeatherAlert = 3
	peakHourCount   = 3
)

const (
	cacheKeyOverview = "analytics:overview"
	cacheKeyTraffic  = "analytics:traffic"
	cacheKeyWeather  = "analytics:weather"
)

// EntityStore is the slice of the store the engine reads from.
type EntityStore interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]models.Event, error)
	ListReadings(ctx context.Context, sensorID string, since time.Time) ([]models.SensorReading, error)
	CountEvents(ctx context.Context, activeOnly bool) (int64, error)
	EventCountsByType(ctx context.Context) (map[string]int64, error)
	EventCountsBySeverity(ctx context.Context) (map[string]int64, error)
	CountAlerts(ctx context.Context, unresolvedOnly bool) (int64, error)
	AverageReadingValue(ctx context.Context) (float64, error)
}

// Service is the analytics engine. All operations are pure reads over
// the entity store.
type Service struct {
	store       EntityStore
	cache       *Cache
	threshold   float64
	sensorCount int
	log         *zap.Logger

	// now is swappable so the time-anchored computations are testable.
	now func() time.Time
}

// New builds the engine. cache may be nil.
func New(s EntityStore, cache *Cache, threshold float64, sensorCount int, log *zap.Logger) *Service {
	return &Service{
		store:       s,
		cache:       cache,
		threshold:   threshold,
		sensorCount: sensorCount,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Overview aggregates event, alert and sensor statistics. An empty
// store yields all-zero counts, not an error.
func (s *Service) Overview(ctx context.Context) (*OverviewStats, error) {
	var cached OverviewStats
	if s.cache.Get(ctx, cacheKeyOverview, &cached) {
		return &cached, nil
	}

	totalEvents, err := s.store.CountEvents(ctx, false)
	if err != nil {
		return nil, err
	}
	activeEvents, err := s.store.CountEvents(ctx, true)
	if err != nil {
		return nil, err
	}
	byType, err := s.store.EventCountsByType(ctx)
	if err != nil {
		return nil, err
	}
	bySeverity, err := s.store.EventCountsBySeverity(ctx)
	if err != nil {
		return nil, err
	}
	totalAlerts, err := s.store.CountAlerts(ctx, false)
	if err != nil {
		return nil, err
	}
	unresolvedAlerts, err := s.store.CountAlerts(ctx, true)
	if err != nil {
		return nil, err
	}
	avgValue, err := s.store.AverageReadingValue(ctx)
	if err != nil {
		return nil, err
	}

	stats := &OverviewStats{
		TotalEvents:          totalEvents,
		ActiveEvents:         activeEvents,
		TotalSensors:         s.sensorCount,
		ActiveSensors:        s.sensorCount,
		TotalAlerts:          totalAlerts,
		UnresolvedAlerts:     unresolvedAlerts,
		AvgSensorValue:       avgValue,
		EventDistribution:    byType,
		SeverityDistribution: bySeverity,
	}
	s.cache.Set(ctx, cacheKeyOverview, stats)
	return stats, nil
}

// TrafficSummary summarizes the most recent traffic events.
func (s *Service) TrafficSummary(ctx context.Context) (*TrafficStats, error) {
	var cached TrafficStats
	if s.cache.Get(ctx, cacheKeyTraffic, &cached) {
		return &cached, nil
	}

	events, err := s.store.ListEvents(ctx, store.EventFilter{
		Type:  models.EventTypeTraffic,
		Limit: trafficWindow,
	})
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return &TrafficStats{AffectedAreas: []string{}, PeakHours: []int{}}, nil
	}

	var congestion []float64
	for _, e := range events {
		if v, ok := metaFloat(e.Metadata, "congestion_level"); ok {
			congestion = append(congestion, v)
		}
	}

	areas := []string{}
	seen := make(map[string]bool)
	for _, e := range events {
		if e.Location == "" || seen[e.Location] {
			continue
		}
		seen[e.Location] = true
		areas = append(areas, e.Location)
		if len(areas) == maxAffected {
			break
		}
	}

	hist := hourHistogram(events)

	stats := &TrafficStats{
		CurrentCongestionLevel: meanOf(congestion),
		AverageSpeed:           30 + rand.Float64()*30, // simulated placeholder
		IncidentCount:          len(events),
		AffectedAreas:          areas,
		PeakHours:              peakHours(hist, peakHourCount),
		Trends:                 TrafficTrends{HourlyDistribution: hist},
	}
	s.cache.Set(ctx, cacheKeyTraffic, stats)
	return stats, nil
}

// WeatherSummary reports current conditions from the newest weather
// event, with fixed defaults when no weather has been recorded.
func (s *Service) WeatherSummary(ctx context.Context) (*WeatherStats, error) {
	var cached WeatherStats
	if s.cache.Get(ctx, cacheKeyWeather, &cached) {
		return &cached, nil
	}

	events, err := s.store.ListEvents(ctx, store.EventFilter{
		Type:  models.EventTypeWeather,
		Limit: weatherWindow,
	})
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return &WeatherStats{
			CurrentTemperature: 20.0,
			FeelsLike:          20.0,
			Humidity:           50.0,
			WindSpeed:          10.0,
			Conditions:         "Clear",
			Forecast:           []string{},
			Alerts:             []string{},
		}, nil
	}

	latest := events[0]
	temperature, ok := metaFloat(latest.Metadata, "temperature")
	if !ok {
		temperature = 20.0
	}
	humidity, ok := metaFloat(latest.Metadata, "humidity")
	if !ok {
		humidity = 50.0
	}
	windSpeed, ok := metaFloat(latest.Metadata, "wind_speed")
	if !ok {
		windSpeed = 10.0
	}

	alerts := []string{}
	for _, e := range events {
		if e.Severity == models.SeverityHigh || e.Severity == models.SeverityCritical {
			alerts = append(alerts, e.Title)
			if len(alerts) == maxWeatherAlert {
				break
			}
		}
	}

	stats := &WeatherStats{
		CurrentTemperature: temperature,
		FeelsLike:          temperature - windSpeed*0.2,
		Humidity:           humidity,
		WindSpeed:          windSpeed,
		Conditions:         latest.Title,
		Forecast:           []string{},
		Alerts:             alerts,
	}
	s.cache.Set(ctx, cacheKeyWeather, stats)
	return stats, nil
}

// DetectAnomalies scores one sensor's readings inside the lookback
// window. Fewer than 10 readings, or a constant series, yields an
// empty list.
func (s *Service) DetectAnomalies(ctx context.Context, sensorID string, lookbackMinutes int) ([]Anomaly, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor id is required", ErrInvalidInput)
	}
	if lookbackMinutes < MinLookbackMinutes || lookbackMinutes > MaxLookbackMinutes {
		return nil, fmt.Errorf("%w: lookback_minutes %d outside [%d, %d]",
			ErrInvalidInput, lookbackMinutes, MinLookbackMinutes, MaxLookbackMinutes)
	}

	since := s.now().Add(-time.Duration(lookbackMinutes) * time.Minute)
	readings, err := s.store.ListReadings(ctx, sensorID, since)
	if err != nil {
		return nil, err
	}
	return scoreAnomalies(readings, s.threshold), nil
}

// Predict emits one frequency-heuristic prediction per future hourly
// slot. Fewer than 5 historical events yields an empty list.
func (s *Service) Predict(ctx context.Context, eventType models.EventType, horizonHours int) ([]Prediction, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, eventType)
	}
	if horizonHours < MinHorizonHours || horizonHours > MaxHorizonHours {
		return nil, fmt.Errorf("%w: horizon_hours %d outside [%d, %d]",
			ErrInvalidInput, horizonHours, MinHorizonHours, MaxHorizonHours)
	}

	now := s.now()
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		Type:      eventType,
		Since:     now.AddDate(0, 0, -historyDays),
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}
	return buildPredictions(events, eventType, horizonHours, now), nil
}
