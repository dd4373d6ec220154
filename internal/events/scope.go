package events

import (
	"context"
	"sync"
)

// Scope owns at most one subscription at a time. Switching to a new key
// releases the previous subscription before the new one is acquired.
type Scope struct {
	subscriber Subscriber

	mu      sync.Mutex
	key     string
	current *Subscription
}

// NewScope creates an empty scope
func NewScope(subscriber Subscriber) *Scope {
	return &Scope{subscriber: subscriber}
}

// Switch subscribes to topics under key. If key is already held the current
// subscription is kept. An empty key only releases the current subscription.
func (s *Scope) Switch(ctx context.Context, key string, topics ...string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.key == key {
		return s.current, nil
	}

	s.releaseLocked()
	if key == "" {
		return nil, nil
	}

	sub, err := s.subscriber.Subscribe(ctx, topics...)
	if err != nil {
		return nil, err
	}
	s.key = key
	s.current = sub
	return sub, nil
}

// Current returns the held subscription, or nil
func (s *Scope) Current() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Key returns the key of the held subscription
func (s *Scope) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Close releases the held subscription
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Scope) releaseLocked() {
	if s.current != nil {
		s.current.Close()
	}
	s.current = nil
	s.key = ""
}
