package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stwalsh4118/urnext/internal/logger"
)

// ErrBrokerClosed is returned when publishing to or subscribing on a closed broker
var ErrBrokerClosed = errors.New("broker is closed")

// MemoryBroker delivers events within a single process
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBroker creates an in-process broker. buffer is the per-subscription queue size.
func NewMemoryBroker(buffer int) *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers e to every subscription on e.Topic
func (b *MemoryBroker) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for sub := range b.topics[e.Topic] {
		if !sub.deliver(e) {
			logger.Log.Debug().
				Str("topic", e.Topic).
				Str("type", string(e.Type)).
				Msg("Subscriber buffer full, event dropped")
		}
	}
	return nil
}

// Subscribe opens a subscription to topics
func (b *MemoryBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	var sub *Subscription
	sub = newSubscription(b.buffer, topics, func() { b.remove(sub) })
	for _, topic := range topics {
		subs, ok := b.topics[topic]
		if !ok {
			subs = make(map[*Subscription]struct{})
			b.topics[topic] = subs
		}
		subs[sub] = struct{}{}
	}
	sub.closeOn(ctx)

	return sub, nil
}

// Close closes every open subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	open := make(map[*Subscription]struct{})
	for _, subs := range b.topics {
		for sub := range subs {
			open[sub] = struct{}{}
		}
	}
	b.mu.Unlock()

	for sub := range open {
		sub.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range sub.topics {
		subs := b.topics[topic]
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}
