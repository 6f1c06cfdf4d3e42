// Package bus provides the pub/sub message bus the pipeline runs on.
// Channels are NATS subjects, hierarchical by convention: one channel
// per event domain, one per sensor, and a catch-all sensor channel.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel layout. The general event stream subscribes EventsWildcard;
// every sensor reading is published both to its own channel and to
// ChannelSensorsAll.
const (
	EventsWildcard    = "events.>"
	ChannelSensorsAll = "sensors.all"
)

// EventChannel returns the domain channel for an event type,
// e.g. "events.traffic".
func EventChannel(eventType string) string {
	return "events." + eventType
}

// SensorChannel returns the exclusive channel for one sensor,
// e.g. "sensors.SENSOR_003".
func SensorChannel(sensorID string) string {
	return "sensors." + sensorID
}

// ErrTimeout is returned by Subscription.Next when no message arrived
// within the bounded wait. Callers treat it as "poll again".
var ErrTimeout = errors.New("bus: next message timed out")

// Subscription is a live channel subscription. Next blocks for at most
// the given timeout so that cancellation is observed promptly.
type Subscription interface {
	Next(timeout time.Duration) ([]byte, error)
	Unsubscribe() error
}

// Bus is the publish/subscribe surface shared by the generator, the
// bridge and the recorder. Implementations must be safe for concurrent
// use; the process creates one Bus at startup and shares it.
type Bus interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
	Subscribe(channel string) (Subscription, error)
	Close() error
}

// Match reports whether a concrete subject matches a subscription
// pattern under NATS token rules: "*" matches exactly one token, ">"
// matches one or more trailing tokens.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, p := range pt {
		if p == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// ValidateChannel rejects channels that would collide with wildcard
// semantics when used as a publish subject.
func ValidateChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("bus: empty channel")
	}
	if strings.ContainsAny(channel, " \t") {
		return fmt.Errorf("bus: channel %q contains whitespace", channel)
	}
	return nil
}
