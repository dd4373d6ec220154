package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/urnext/internal/logger"
)

// RedisBroker fans events out through Redis pub/sub so that every API
// instance sharing the database sees every change
type RedisBroker struct {
	client *redis.Client
	prefix string
	buffer int
}

// NewRedisBroker creates a broker on an existing client. Topics are published
// on channels named prefix+topic.
func NewRedisBroker(client *redis.Client, prefix string, buffer int) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: prefix,
		buffer: buffer,
	}
}

// NewRedisBrokerFromURL parses a redis:// URL and verifies the connection
func NewRedisBrokerFromURL(ctx context.Context, url, prefix string, buffer int) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisBroker(client, prefix, buffer), nil
}

// Publish sends e on the Redis channel for e.Topic
func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+e.Topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription to topics. It returns once Redis has
// confirmed the subscription, so events published afterwards are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = b.prefix + topic
	}

	ps := b.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	var wg sync.WaitGroup
	sub := newSubscription(b.buffer, topics, func() {
		_ = ps.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range ps.Channel() {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				logger.Log.Warn().
					Err(err).
					Str("channel", msg.Channel).
					Msg("Dropping malformed event")
				continue
			}
			sub.deliver(e)
		}
	}()

	sub.closeOn(ctx)
	return sub, nil
}

// Ping checks Redis connectivity
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
