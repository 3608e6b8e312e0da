// Package events carries bot events to subscribers: the in-process bus used
// when Redis is not configured, and a Publisher that wraps payloads in
// domain.Envelope frames.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. Publishing never
// blocks; a full subscriber misses the message.
const subscriberBuffer = 128

type subscription struct {
	pattern string
	ch      chan []byte
}

// Bus is an in-process domain.SignalBus. Channel patterns ending in "*"
// match by prefix, as Redis PSUBSCRIBE does for the patterns the bot uses.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// NewBus creates an empty in-process bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers payload to every matching subscriber without blocking.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. The returned
// channel is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscription{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func matches(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
