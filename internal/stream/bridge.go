package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/bus"
)

// pollTimeout bounds each wait for the next bus message so a pump
// notices cancellation promptly, not only between messages.
const pollTimeout = time.Second

// Bridge subscribes to bus channels on behalf of sessions and forwards
// received payloads to the Manager's broadcast path. Pumps are
// refcounted per distinct channel: a channel is pulled from the bus
// exactly once no matter how many sessions watch it, and the bus
// subscription is released when the last session detaches.
type Bridge struct {
	bus bus.Bus
	mgr *Manager
	log *zap.Logger

	mu    sync.Mutex
	pumps map[string]*pump
}

type pump struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a bridge feeding the given manager.
func NewBridge(b bus.Bus, mgr *Manager, log *zap.Logger) *Bridge {
	return &Bridge{
		bus:   b,
		mgr:   mgr,
		log:   log,
		pumps: make(map[string]*pump),
	}
}

// Attach registers interest in a channel, starting a pump if this is
// the first watcher. The returned detach function is idempotent; the
// last detach cancels the pump and waits for the bus subscription to be
// released.
func (b *Bridge) Attach(channel string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pumps[channel]
	if !ok {
		sub, err := b.bus.Subscribe(channel)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithCancel(context.Background())
		p = &pump{cancel: cancel, done: make(chan struct{})}
		b.pumps[channel] = p
		go b.run(ctx, channel, sub, p.done)
	}
	p.refs++

	var once sync.Once
	detach := func() {
		once.Do(func() { b.detach(channel, p) })
	}
	return detach, nil
}

func (b *Bridge) detach(channel string, p *pump) {
	b.mu.Lock()
	p.refs--
	last := p.refs == 0
	if last {
		delete(b.pumps, channel)
	}
	b.mu.Unlock()

	if last {
		p.cancel()
		<-p.done
	}
}

// Close detaches every pump, used at shutdown.
func (b *Bridge) Close() {
	b.mu.Lock()
	pumps := b.pumps
	b.pumps = make(map[string]*pump)
	b.mu.Unlock()

	for _, p := range pumps {
		p.cancel()
		<-p.done
	}
}

// run is the per-channel pump. Unsubscribing before exit is a hard
// requirement, so it lives in the defer and runs no matter how the
// pump is cancelled.
func (b *Bridge) run(ctx context.Context, channel string, sub bus.Subscription, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			b.log.Warn("failed to unsubscribe", zap.String("channel", channel), zap.Error(err))
		}
	}()

	b.log.Info("bridge subscribed", zap.String("channel", channel))
	for {
		if ctx.Err() != nil {
			b.log.Info("bridge unsubscribing", zap.String("channel", channel))
			return
		}

		data, err := sub.Next(pollTimeout)
		if err != nil {
			if errors.Is(err, bus.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.log.Error("bridge receive failed", zap.String("channel", channel), zap.Error(err))
			if !sleepCtx(ctx, pollTimeout) {
				return
			}
			continue
		}

		env, ok := b.decode(channel, data)
		if !ok {
			continue
		}
		b.mgr.Broadcast(env)
	}
}

// decode turns a raw bus payload into a broadcast envelope. Malformed
// payloads are dropped and logged, never propagated to sessions.
func (b *Bridge) decode(channel string, data []byte) (Envelope, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		b.log.Error("dropping malformed bus payload",
			zap.String("channel", channel), zap.Error(err))
		return Envelope{}, false
	}

	ts, _ := payload["timestamp"].(string)
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return Envelope{Channel: channel, Data: payload, Timestamp: ts}, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
