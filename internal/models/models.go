// Package models defines the domain types shared across the CityPulse
// services: city events, sensor readings, the sensor roster and alerts.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a city event.
type EventType string

const (
	EventTypeTraffic EventType = "traffic"
	EventTypeWeather EventType = "weather"
	EventTypeSocial  EventType = "social"
	EventTypeSensor  EventType = "sensor"
	EventTypeAlert   EventType = "alert"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeTraffic, EventTypeWeather, EventTypeSocial, EventTypeSensor, EventTypeAlert:
		return true
	}
	return false
}

// Severity orders event impact: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank maps severity to its position in the low<medium<high<critical order.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Event is a city event, synthetic or manually created. Events are never
// hard-deleted; deactivation flips IsActive and nothing else.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"event_type"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Location    string                 `json:"location,omitempty"`
	Latitude    *float64               `json:"latitude,omitempty"`
	Longitude   *float64               `json:"longitude,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsActive    bool                   `json:"is_active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Validate checks the invariants enforced at the generator boundary.
func (e *Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("invalid event type %q", e.Type)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", e.Severity)
	}
	if e.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if e.Latitude != nil && (*e.Latitude < -90 || *e.Latitude > 90) {
		return fmt.Errorf("latitude %f out of range", *e.Latitude)
	}
	if e.Longitude != nil && (*e.Longitude < -180 || *e.Longitude > 180) {
		return fmt.Errorf("longitude %f out of range", *e.Longitude)
	}
	return nil
}

// SensorReading is one sample from one sensor. Readings are append-only
// and never mutated after creation.
type SensorReading struct {
	ID        uuid.UUID              `json:"id"`
	SensorID  string                 `json:"sensor_id"`
	Timestamp time.Time              `json:"timestamp"`
	Value     float64                `json:"value"`
	Unit      string                 `json:"unit,omitempty"`
	Quality   float64                `json:"quality"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SensorType classifies a roster sensor.
type SensorType string

const (
	SensorTypeTemperature SensorType = "temperature"
	SensorTypeHumidity    SensorType = "humidity"
	SensorTypeAirQuality  SensorType = "air_quality"
	SensorTypeNoise       SensorType = "noise"
)

// SensorTypes lists every roster sensor type.
var SensorTypes = []SensorType{
	SensorTypeTemperature,
	SensorTypeHumidity,
	SensorTypeAirQuality,
	SensorTypeNoise,
}

// Sensor describes one roster entry. The roster is generated once at
// startup and is stable for the process lifetime.
type Sensor struct {
	SensorID  string     `json:"sensor_id"`
	Name      string     `json:"name"`
	Type      SensorType `json:"type"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
}

// Alert is a system alert record. The core only counts alerts for the
// overview aggregation; creation and resolution happen elsewhere.
type Alert struct {
	ID         uuid.UUID              `json:"id"`
	AlertType  string                 `json:"alert_type"`
	Severity   Severity               `json:"severity"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Source     string                 `json:"source,omitempty"`
	IsResolved bool                   `json:"is_resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
