// Package collector synthesizes city data: traffic events, weather
// events and per-sensor readings, each on its own cadence. Events are
// persisted and published; readings are published only.
package collector

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sadiqib0/Citypulse/internal/bus"
	"github.com/Sadiqib0/Citypulse/internal/config"
	"github.com/Sadiqib0/Citypulse/internal/models"
)

// City center the synthetic data is jittered around (New York).
const (
	cityLatitude  = 40.7128
	cityLongitude = -74.0060
)

// tickBackoff is how long a loop waits after a failed tick before its
// next attempt. A failed tick never terminates the loop.
const tickBackoff = 5 * time.Second

var trafficTitles = []string{
	"Heavy Traffic",
	"Accident",
	"Road Construction",
	"Traffic Jam",
	"Slow Moving Traffic",
}

var trafficSeverities = map[string]models.Severity{
	"Heavy Traffic":       models.SeverityMedium,
	"Accident":            models.SeverityHigh,
	"Road Construction":   models.SeverityLow,
	"Traffic Jam":         models.SeverityHigh,
	"Slow Moving Traffic": models.SeverityMedium,
}

var trafficLocations = []string{"Broadway", "Fifth Ave", "Park Ave", "Madison Ave"}

type weatherCondition struct {
	title    string
	severity models.Severity
}

var weatherConditions = []weatherCondition{
	{"Clear Sky", models.SeverityLow},
	{"Light Rain", models.SeverityLow},
	{"Heavy Rain", models.SeverityMedium},
	{"Thunderstorm", models.SeverityHigh},
	{"Snow", models.SeverityMedium},
	{"Fog", models.SeverityMedium},
}

var sensorValueRanges = map[models.SensorType][2]float64{
	models.SensorTypeTemperature: {0, 40},
	models.SensorTypeHumidity:    {20, 90},
	models.SensorTypeAirQuality:  {0, 500},
	models.SensorTypeNoise:       {30, 100},
}

var sensorUnits = map[models.SensorType]string{
	models.SensorTypeTemperature: "°C",
	models.SensorTypeHumidity:    "%",
	models.SensorTypeAirQuality:  "AQI",
	models.SensorTypeNoise:       "dB",
}

// EventWriter is the slice of the entity store the collector needs.
type EventWriter interface {
	InsertEvent(ctx context.Context, e *models.Event) error
}

// Collector runs the three generator loops. Loops are independent: no
// ordering is guaranteed between them and a failure in one tick only
// delays that loop.
type Collector struct {
	cfg    config.CollectorConfig
	bus    bus.Bus
	events EventWriter
	log    *zap.Logger

	sensors []models.Sensor
	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New builds a collector and its sensor roster. The roster is generated
// once and stays stable for the process lifetime.
func New(cfg config.CollectorConfig, b bus.Bus, events EventWriter, log *zap.Logger) *Collector {
	c := &Collector{
		cfg:    cfg,
		bus:    b,
		events: events,
		log:    log,
	}
	c.sensors = generateRoster(cfg.SensorCount)
	return c
}

func generateRoster(count int) []models.Sensor {
	sensors := make([]models.Sensor, 0, count)
	for i := 0; i < count; i++ {
		sensors = append(sensors, models.Sensor{
			SensorID:  fmt.Sprintf("SENSOR_%03d", i),
			Name:      fmt.Sprintf("Sensor %d", i+1),
			Type:      models.SensorTypes[rand.Intn(len(models.SensorTypes))],
			Latitude:  cityLatitude + uniform(-0.1, 0.1),
			Longitude: cityLongitude + uniform(-0.1, 0.1),
		})
	}
	return sensors
}

// Sensors returns a copy of the roster.
func (c *Collector) Sensors() []models.Sensor {
	out := make([]models.Sensor, len(c.sensors))
	copy(out, c.sensors)
	return out
}

// Running reports whether the loops are active.
func (c *Collector) Running() bool {
	return c.running.Load()
}

// Start launches the three loops. It returns immediately; Stop shuts
// them down.
func (c *Collector) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("collector already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.group = &errgroup.Group{}

	c.group.Go(func() error { c.trafficLoop(ctx); return nil })
	c.group.Go(func() error { c.weatherLoop(ctx); return nil })
	c.group.Go(func() error { c.sensorLoop(ctx); return nil })

	c.log.Info("data collection started",
		zap.Int("sensors", len(c.sensors)),
		zap.Duration("sensor_interval", c.cfg.Interval))
	return nil
}

// Stop cancels the loops and waits for them to drain. Safe to call
// concurrently with a running tick and more than once.
func (c *Collector) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.group.Wait()
	c.log.Info("data collection stopped")
}

func (c *Collector) trafficLoop(ctx context.Context) {
	for {
		if !sleep(ctx, randomDuration(15*time.Second, 30*time.Second)) {
			return
		}
		if err := c.emitTraffic(ctx); err != nil {
			c.log.Error("traffic tick failed", zap.Error(err))
			if !sleep(ctx, tickBackoff) {
				return
			}
		}
	}
}

func (c *Collector) weatherLoop(ctx context.Context) {
	for {
		if !sleep(ctx, randomDuration(30*time.Second, 60*time.Second)) {
			return
		}
		if err := c.emitWeather(ctx); err != nil {
			c.log.Error("weather tick failed", zap.Error(err))
			if !sleep(ctx, tickBackoff) {
				return
			}
		}
	}
}

func (c *Collector) sensorLoop(ctx context.Context) {
	for {
		if !sleep(ctx, c.cfg.Interval) {
			return
		}
		if err := c.emitReadings(ctx); err != nil {
			c.log.Error("sensor tick failed", zap.Error(err))
			if !sleep(ctx, tickBackoff) {
				return
			}
		}
	}
}

// emitTraffic persists and publishes one traffic event. Persistence and
// publication are independent steps; there is no transaction across the
// store and the bus.
func (c *Collector) emitTraffic(ctx context.Context) error {
	event := c.newTrafficEvent()
	if err := event.Validate(); err != nil {
		return err
	}
	if err := c.events.InsertEvent(ctx, event); err != nil {
		return err
	}
	return c.bus.Publish(ctx, bus.EventChannel(string(models.EventTypeTraffic)), event)
}

func (c *Collector) emitWeather(ctx context.Context) error {
	event := c.newWeatherEvent()
	if err := event.Validate(); err != nil {
		return err
	}
	if err := c.events.InsertEvent(ctx, event); err != nil {
		return err
	}
	return c.bus.Publish(ctx, bus.EventChannel(string(models.EventTypeWeather)), event)
}

// emitReadings publishes one reading per roster sensor, to the sensor's
// own channel and to the catch-all channel.
func (c *Collector) emitReadings(ctx context.Context) error {
	for i := range c.sensors {
		reading := c.newReading(&c.sensors[i])
		if err := c.bus.Publish(ctx, bus.SensorChannel(reading.SensorID), reading); err != nil {
			return err
		}
		if err := c.bus.Publish(ctx, bus.ChannelSensorsAll, reading); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) newTrafficEvent() *models.Event {
	title := trafficTitles[rand.Intn(len(trafficTitles))]
	now := time.Now().UTC()
	lat := cityLatitude + uniform(-0.05, 0.05)
	lon := cityLongitude + uniform(-0.05, 0.05)

	return &models.Event{
		ID:          uuid.New(),
		Type:        models.EventTypeTraffic,
		Severity:    trafficSeverities[title],
		Title:       title,
		Description: "Traffic incident detected in the area",
		Location:    trafficLocations[rand.Intn(len(trafficLocations))],
		Latitude:    &lat,
		Longitude:   &lon,
		Metadata: map[string]interface{}{
			"congestion_level": uniform(0.5, 1.0),
			"estimated_delay":  5 + rand.Intn(26),
			"affected_lanes":   1 + rand.Intn(3),
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Collector) newWeatherEvent() *models.Event {
	cond := weatherConditions[rand.Intn(len(weatherConditions))]
	now := time.Now().UTC()
	lat := cityLatitude
	lon := cityLongitude

	return &models.Event{
		ID:          uuid.New(),
		Type:        models.EventTypeWeather,
		Severity:    cond.severity,
		Title:       cond.title,
		Description: "Current weather condition: " + cond.title,
		Location:    "City Wide",
		Latitude:    &lat,
		Longitude:   &lon,
		Metadata: map[string]interface{}{
			"temperature": uniform(0, 35),
			"humidity":    uniform(30, 90),
			"wind_speed":  uniform(0, 50),
			"visibility":  uniform(1, 10),
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Collector) newReading(sensor *models.Sensor) *models.SensorReading {
	bounds := sensorValueRanges[sensor.Type]
	return &models.SensorReading{
		ID:        uuid.New(),
		SensorID:  sensor.SensorID,
		Timestamp: time.Now().UTC(),
		Value:     uniform(bounds[0], bounds[1]),
		Unit:      sensorUnits[sensor.Type],
		Quality:   uniform(0.8, 1.0),
		Metadata: map[string]interface{}{
			"sensor_type": string(sensor.Type),
			"location":    fmt.Sprintf("%.4f, %.4f", sensor.Latitude, sensor.Longitude),
		},
	}
}

func uniform(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

func randomDuration(min, max time.Duration) time.Duration {
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// sleep waits for d or until ctx is cancelled, reporting whether the
// caller should continue.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
