// Package analytics computes read-only statistics over the entity
// store: overview aggregation, domain summaries, z-score anomaly
// detection and frequency-based predictions. It holds no state beyond
// the request, so every call reflects the store as it is now.
package analytics

import "time"

// OverviewStats is the city-wide aggregate.
type OverviewStats struct {
	TotalEvents          int64            `json:"total_events"`
	ActiveEvents         int64            `json:"active_events"`
	TotalSensors         int              `json:"total_sensors"`
	ActiveSensors        int              `json:"active_sensors"`
	TotalAlerts          int64            `json:"total_alerts"`
	UnresolvedAlerts     int64            `json:"unresolved_alerts"`
	AvgSensorValue       float64          `json:"avg_sensor_value"`
	EventDistribution    map[string]int64 `json:"event_distribution"`
	SeverityDistribution map[string]int64 `json:"severity_distribution"`
}

// TrafficStats summarizes recent traffic events. AverageSpeed is a
// simulated placeholder figure, not derived from the data.
type TrafficStats struct {
	CurrentCongestionLevel float64       `json:"current_congestion_level"`
	AverageSpeed           float64       `json:"average_speed"`
	IncidentCount          int           `json:"incident_count"`
	AffectedAreas          []string      `json:"affected_areas"`
	PeakHours              []int         `json:"peak_hours"`
	Trends                 TrafficTrends `json:"trends"`
}

// TrafficTrends carries the hour-of-day event histogram.
type TrafficTrends struct {
	HourlyDistribution map[int]int `json:"hourly_distribution,omitempty"`
}

// WeatherStats reports current conditions from the most recent weather
// event. Forecast is always empty; no external forecast source is
// wired into the core.
type WeatherStats struct {
	CurrentTemperature float64  `json:"current_temperature"`
	FeelsLike          float64  `json:"feels_like"`
	Humidity           float64  `json:"humidity"`
	WindSpeed          float64  `json:"wind_speed"`
	Conditions         string   `json:"conditions"`
	Forecast           []string `json:"forecast"`
	Alerts             []string `json:"alerts"`
}

// Anomaly is one reading flagged by the z-score detector.
type Anomaly struct {
	Timestamp     time.Time  `json:"timestamp"`
	Value         float64    `json:"value"`
	ExpectedRange [2]float64 `json:"expected_range"`
	ZScore        float64    `json:"z_score"`
}

// Prediction is one hourly slot of the frequency heuristic. It is a
// deterministic lookup of historical hour-of-day frequency, not a
// trained forecast model.
type Prediction struct {
	PredictionType string             `json:"prediction_type"`
	Timestamp      time.Time          `json:"timestamp"`
	PredictedValue float64            `json:"predicted_value"`
	Confidence     float64            `json:"confidence"`
	Metadata       PredictionMetadata `json:"metadata"`
}

// PredictionMetadata explains where a prediction came from.
type PredictionMetadata struct {
	HistoricalFrequency int `json:"historical_frequency"`
	Hour                int `json:"hour"`
}
