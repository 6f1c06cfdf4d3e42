// Package bustest provides an in-memory Bus implementation for tests.
// It honors the same contract as the NATS bus: wildcard subscriptions,
// bounded-wait polling and explicit unsubscribe.
package bustest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Sadiqib0/Citypulse/internal/bus"
)

// Bus is an in-memory pub/sub bus.
type Bus struct {
	mu         sync.Mutex
	subs       []*Subscription
	publishErr error
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// FailPublishes makes every subsequent Publish return err (nil to
// restore normal behavior).
func (b *Bus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Publish marshals payload and delivers it to matching subscriptions.
func (b *Bus) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.PublishRaw(channel, data)
}

// PublishRaw delivers pre-encoded bytes, letting tests inject payloads
// that are not valid JSON.
func (b *Bus) PublishRaw(channel string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.publishErr != nil {
		return b.publishErr
	}
	for _, sub := range b.subs {
		if bus.Match(sub.pattern, channel) {
			select {
			case sub.ch <- data:
			default:
				return fmt.Errorf("bustest: subscription buffer full for %s", sub.pattern)
			}
		}
	}
	return nil
}

// Subscribe opens a subscription on the given pattern.
func (b *Bus) Subscribe(channel string) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		bus:     b,
		pattern: channel,
		ch:      make(chan []byte, 64),
	}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// Close drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	return nil
}

// SubscriberCount counts live subscriptions whose pattern equals
// channel, letting tests assert that unsubscribe actually ran.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.subs {
		if sub.pattern == channel {
			n++
		}
	}
	return n
}

// Subscription is one in-memory subscription.
type Subscription struct {
	bus     *Bus
	pattern string
	ch      chan []byte
}

// Next returns the next message or bus.ErrTimeout after the wait.
func (s *Subscription) Next(timeout time.Duration) ([]byte, error) {
	select {
	case data := <-s.ch:
		return data, nil
	case <-time.After(timeout):
		return nil, bus.ErrTimeout
	}
}

// Unsubscribe removes the subscription from the bus.
func (s *Subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	return nil
}
