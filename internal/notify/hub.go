package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/models"
)

type hubSubscriber struct {
	ch    chan models.Event
	group string
}

// Hub is an in-process Bus. Publish never blocks: a subscriber whose buffer
// is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*hubSubscriber]struct{}
	buffer int
	next   atomic.Uint64
	log    *logrus.Logger
}

// NewHub initializes an in-process bus
func NewHub(buffer int, log *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[*hubSubscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Publish delivers ev to every plain subscriber of topic and to one member
// of each queue group
func (h *Hub) Publish(ctx context.Context, topic string, ev models.Event) error {
	if !validTopic(topic) {
		return fmt.Errorf("invalid topic %q", topic)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var groups map[string][]*hubSubscriber
	for sub := range h.topics[topic] {
		if sub.group != "" {
			if groups == nil {
				groups = make(map[string][]*hubSubscriber)
			}
			groups[sub.group] = append(groups[sub.group], sub)
			continue
		}
		h.deliver(sub, topic, ev)
	}
	for _, members := range groups {
		h.deliver(members[h.next.Add(1)%uint64(len(members))], topic, ev)
	}
	return nil
}

func (h *Hub) deliver(sub *hubSubscriber, topic string, ev models.Event) {
	select {
	case sub.ch <- ev:
	default:
		h.log.WithFields(logrus.Fields{"topic": topic, "event": ev.Type}).Debug("Dropping event for slow subscriber")
	}
}

// Subscribe registers a new subscriber on topic
func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	return h.subscribe(ctx, topic, "")
}

// QueueSubscribe joins group on topic
func (h *Hub) QueueSubscribe(ctx context.Context, topic, group string) (*Subscription, error) {
	if group == "" {
		return nil, fmt.Errorf("queue group is required")
	}
	return h.subscribe(ctx, topic, group)
}

func (h *Hub) subscribe(ctx context.Context, topic, group string) (*Subscription, error) {
	if !validTopic(topic) {
		return nil, fmt.Errorf("invalid topic %q", topic)
	}

	sub := &hubSubscriber{ch: make(chan models.Event, h.buffer), group: group}
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*hubSubscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	s := newSubscription(topic, sub.ch, func() {
		h.mu.Lock()
		delete(h.topics[topic], sub)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
		h.mu.Unlock()
		close(sub.ch)
	})
	closeOnDone(ctx, s)
	return s, nil
}

// Subscribers returns the number of subscribers on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
