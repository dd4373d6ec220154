// Package events carries change notifications from the watchlist service to
// push subscribers and the invite mail dispatcher. Events only say what
// changed; subscribers re-read current state.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies what changed
type Type string

// Event types
const (
	WatchlistUpdated Type = "watchlist.updated"
	UserUpdated      Type = "user.updated"
	InviteCreated    Type = "invite.created"
)

// InvitesTopic carries InviteCreated events
const InvitesTopic = "invites"

// Event is a change notification
type Event struct {
	Type        Type      `json:"type"`
	Topic       string    `json:"topic"`
	WatchlistID string    `json:"watchlist_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	InviteID    string    `json:"invite_id,omitempty"`
	At          time.Time `json:"at"`
}

// WatchlistTopic returns the topic for changes to a watchlist and its items
func WatchlistTopic(id uuid.UUID) string {
	return "watchlist:" + id.String()
}

// UserTopic returns the topic for changes to a user profile
func UserTopic(id string) string {
	return "user:" + id
}

// NewWatchlistEvent creates a WatchlistUpdated event
func NewWatchlistEvent(id uuid.UUID) Event {
	return Event{
		Type:        WatchlistUpdated,
		Topic:       WatchlistTopic(id),
		WatchlistID: id.String(),
		At:          time.Now().UTC(),
	}
}

// NewUserEvent creates a UserUpdated event
func NewUserEvent(userID string) Event {
	return Event{
		Type:   UserUpdated,
		Topic:  UserTopic(userID),
		UserID: userID,
		At:     time.Now().UTC(),
	}
}

// NewInviteEvent creates an InviteCreated event
func NewInviteEvent(inviteID, watchlistID uuid.UUID) Event {
	return Event{
		Type:        InviteCreated,
		Topic:       InvitesTopic,
		WatchlistID: watchlistID.String(),
		InviteID:    inviteID.String(),
		At:          time.Now().UTC(),
	}
}

// Publisher sends events to subscribers of the event's topic
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber opens subscriptions to one or more topics
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
}

// Broker is a Publisher and Subscriber with a lifetime
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription is a live feed of events for a set of topics. It must be
// closed by its owner; cancelling the context passed to Subscribe also closes it.
//
// Delivery never blocks the publisher. When the buffer is full further events
// are dropped, which is harmless because a queued event already makes the
// subscriber re-read state.
type Subscription struct {
	topics  []string
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(buffer int, topics []string, release func()) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	return &Subscription{
		topics:  topics,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
		release: release,
	}
}

// closeOn closes the subscription when ctx is done
func (s *Subscription) closeOn(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// Events returns the event channel. It is closed when the subscription closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed when the subscription closes
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Topics returns the subscribed topics
func (s *Subscription) Topics() []string {
	return append([]string(nil), s.topics...)
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
		close(s.done)
		close(s.ch)
	})
}

// deliver must not be called after release returns
func (s *Subscription) deliver(e Event) bool {
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}
