package event

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Bus is a thread-safe publish/subscribe event bus.
type Bus struct {
	mu sync.RWMutex

	// subscribers in subscription order; delivery follows this order.
	subscribers []*subscription

	nextID atomic.Uint64
	closed atomic.Bool

	logger zerolog.Logger
}

type subscription struct {
	id      string
	pattern string
	handler Handler
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern and returns a
// subscription ID. It returns "" on a closed bus.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	if b.closed.Load() || handler == nil {
		return ""
	}

	sub := &subscription{
		id:      strconv.FormatUint(b.nextID.Add(1), 10),
		pattern: pattern,
		handler: handler,
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	return sub.id
}

// Unsubscribe removes a subscription. It returns true if it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers an event to every matching subscriber synchronously,
// in subscription order. A panicking handler does not stop delivery to
// the others.
func (b *Bus) Publish(topic string, payload any) {
	if b.closed.Load() {
		return
	}

	e := Event{Topic: topic, Payload: payload, Time: time.Now()}
	for _, h := range b.matching(topic) {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("topic", e.Topic).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	h(e)
}

// Close removes all subscriptions. Later Subscribe and Publish calls are no-ops.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	b.subscribers = nil
	b.mu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) matching(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var handlers []Handler
	for _, sub := range b.subscribers {
		if Match(sub.pattern, topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

// Match reports whether topic matches pattern.
func Match(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) < 2 || pattern[len(pattern)-2:] != ".*" {
		return pattern == topic
	}

	prefix := pattern[:len(pattern)-2]
	if len(topic) <= len(prefix) {
		return false
	}
	return topic[:len(prefix)] == prefix && topic[len(prefix)] == '.'
}
