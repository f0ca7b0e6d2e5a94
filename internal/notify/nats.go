package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/models"
)

const (
	subjectClaims     = "claims.events"
	subjectUserPrefix = "claims.user."
)

// NATSBus is a Bus over NATS subjects, used when the API and the socket
// gateway run in separate processes
type NATSBus struct {
	nc     *nats.Conn
	buffer int
	log    *logrus.Logger
}

// ConnectNATS establishes a NATS connection that reconnects indefinitely
func ConnectNATS(url string, log *logrus.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("claims-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS at %s", nc.ConnectedUrl())
	return NewNATSBus(nc, log), nil
}

// NewNATSBus wraps an existing connection
func NewNATSBus(nc *nats.Conn, log *logrus.Logger) *NATSBus {
	return &NATSBus{nc: nc, buffer: DefaultBuffer, log: log}
}

// Close drains the connection
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}

// Subject maps a bus topic to a NATS subject
func Subject(topic string) string {
	if topic == TopicClaims {
		return subjectClaims
	}
	return subjectUserPrefix + strings.TrimPrefix(topic, userTopicPrefix)
}

// Publish encodes ev as JSON and publishes it on the topic's subject
func (b *NATSBus) Publish(ctx context.Context, topic string, ev models.Event) error {
	if !validTopic(topic) {
		return fmt.Errorf("invalid topic %q", topic)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.nc.Publish(Subject(topic), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers decoded events from the topic's subject
func (b *NATSBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	return b.subscribe(ctx, topic, "")
}

// QueueSubscribe joins a NATS queue group, so each event reaches one member
// across all connected processes
func (b *NATSBus) QueueSubscribe(ctx context.Context, topic, group string) (*Subscription, error) {
	if group == "" {
		return nil, fmt.Errorf("queue group is required")
	}
	return b.subscribe(ctx, topic, group)
}

func (b *NATSBus) subscribe(ctx context.Context, topic, group string) (*Subscription, error) {
	if !validTopic(topic) {
		return nil, fmt.Errorf("invalid topic %q", topic)
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	ch := make(chan models.Event, b.buffer)

	handle := func(m *nats.Msg) {
		var ev models.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.log.Warnf("Discarding malformed event on %s: %v", m.Subject, err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
			b.log.WithFields(logrus.Fields{"topic": topic, "event": ev.Type}).Debug("Dropping event for slow subscriber")
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if group == "" {
		ns, err = b.nc.Subscribe(Subject(topic), handle)
	} else {
		ns, err = b.nc.QueueSubscribe(Subject(topic), group, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	s := newSubscription(topic, ch, func() {
		if err := ns.Unsubscribe(); err != nil {
			b.log.Debugf("NATS unsubscribe: %v", err)
		}
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	})
	closeOnDone(ctx, s)
	return s, nil
}
