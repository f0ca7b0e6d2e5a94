// Package notify fans claim lifecycle events out to connected viewers.
// Delivery is at-most-once: slow subscribers lose events and must re-read
// the claim store to reconcile.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/Dan9191/claims-service/internal/models"
)

// TopicClaims receives every claim lifecycle event
const TopicClaims = "claims"

const userTopicPrefix = "user:"

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// UserTopic returns the topic addressed to a single user
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// Bus is a publish/subscribe channel for events
type Bus interface {
	Publish(ctx context.Context, topic string, ev models.Event) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// QueueBus is a Bus that can also load-balance a topic across a named group.
// Each event goes to one member of the group, whichever process it lives in.
type QueueBus interface {
	Bus
	QueueSubscribe(ctx context.Context, topic, group string) (*Subscription, error)
}

// Subscription delivers events for one topic until closed
type Subscription struct {
	Topic   string
	events  <-chan models.Event
	once    sync.Once
	closeFn func()
}

func newSubscription(topic string, events <-chan models.Event, closeFn func()) *Subscription {
	return &Subscription{Topic: topic, events: events, closeFn: closeFn}
}

// Events returns the receive channel. It is closed after Close.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Close stops delivery and releases the subscription
func (s *Subscription) Close() {
	s.once.Do(s.closeFn)
}

// closeOnDone ties a subscription's lifetime to ctx
func closeOnDone(ctx context.Context, sub *Subscription) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
}

func validTopic(topic string) bool {
	if topic == TopicClaims {
		return true
	}
	return strings.HasPrefix(topic, userTopicPrefix) && len(topic) > len(userTopicPrefix)
}
