// Package recorder persists the sensor-reading stream. It consumes the
// catch-all sensor channel and writes each reading to the entity store,
// plus an optional InfluxDB measurement for time-series tooling.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/bus"
	"github.com/Sadiqib0/Citypulse/internal/config"
	"github.com/Sadiqib0/Citypulse/internal/models"
)

const pollTimeout = time.Second

// ReadingWriter is the slice of the entity store the recorder needs.
type ReadingWriter interface {
	InsertReading(ctx context.Context, r *models.SensorReading) error
}

// Recorder drains the catch-all sensor channel into storage. Store
// failures and malformed payloads are logged and skipped; nothing here
// is fatal.
type Recorder struct {
	bus      bus.Bus
	readings ReadingWriter
	log      *zap.Logger

	influx      influxdb2.Client
	influxWrite influxapi.WriteAPI

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a recorder. With an empty Influx URL the time-series
// mirror is disabled and only Postgres is written.
func New(b bus.Bus, readings ReadingWriter, influxCfg config.InfluxConfig, log *zap.Logger) *Recorder {
	r := &Recorder{
		bus:      b,
		readings: readings,
		log:      log,
	}
	if influxCfg.URL != "" {
		r.influx = influxdb2.NewClient(influxCfg.URL, influxCfg.Token)
		r.influxWrite = r.influx.WriteAPI(influxCfg.Org, influxCfg.Bucket)
	}
	return r
}

// Start subscribes to the catch-all channel and begins draining it.
func (r *Recorder) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(bus.ChannelSensorsAll)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(ctx, sub)
	return nil
}

// Stop cancels the drain loop and flushes pending Influx writes.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.influxWrite != nil {
		r.influxWrite.Flush()
	}
	if r.influx != nil {
		r.influx.Close()
	}
}

func (r *Recorder) run(ctx context.Context, sub bus.Subscription) {
	defer r.wg.Done()
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			r.log.Warn("recorder unsubscribe failed", zap.Error(err))
		}
	}()

	r.log.Info("recorder subscribed", zap.String("channel", bus.ChannelSensorsAll))
	for {
		if ctx.Err() != nil {
			return
		}

		data, err := sub.Next(pollTimeout)
		if err != nil {
			if errors.Is(err, bus.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			r.log.Error("recorder receive failed", zap.Error(err))
			continue
		}

		var reading models.SensorReading
		if err := json.Unmarshal(data, &reading); err != nil {
			r.log.Error("dropping malformed reading payload", zap.Error(err))
			continue
		}
		if reading.SensorID == "" {
			r.log.Error("dropping reading without sensor id")
			continue
		}

		if err := r.readings.InsertReading(ctx, &reading); err != nil {
			r.log.Error("failed to persist reading",
				zap.String("sensor_id", reading.SensorID), zap.Error(err))
			continue
		}
		r.mirror(&reading)
	}
}

// mirror writes the reading as an Influx point. The write API batches
// asynchronously, so a slow Influx never stalls the drain loop.
func (r *Recorder) mirror(reading *models.SensorReading) {
	if r.influxWrite == nil {
		return
	}
	point := influxdb2.NewPoint(
		"sensor_reading",
		map[string]string{
			"sensor_id": reading.SensorID,
			"unit":      reading.Unit,
		},
		map[string]interface{}{
			"value":   reading.Value,
			"quality": reading.Quality,
		},
		reading.Timestamp,
	)
	r.influxWrite.WritePoint(point)
}
