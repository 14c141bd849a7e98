// Package dispatch is the in-process stand-in for the message-queue
// fabric that triggers the event handlers. It keeps the fabric's
// contract — publish returns a message id, handlers receive opaque
// payloads — without pulling a broker into the binary.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitewatch/internal/logging"
)

// Topic names shared by ingress and handlers.
const (
	TopicSiteChecks = "site-checks"
	TopicAlerts     = "alertmanager-events"
)

// Message is one published trigger event.
type Message struct {
	ID          string
	Data        []byte
	PublishedAt time.Time
}

// Handler consumes a message. Errors are logged by the bus, not retried:
// retry policy belongs to the surrounding dispatcher, not the handlers.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the only part of the bus the ingress layer sees.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (string, error)
}

// Bus routes published messages to subscribed handlers, sequentially per
// message. Subscribe before Publish; subscriptions are not synchronized
// against in-flight deliveries.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With(logging.Field{Key: "component", Value: "dispatch"}),
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers data to every handler of topic and returns the
// message id. Handler errors are logged and do not fail the publish:
// the message was accepted, processing outcome is the handler's story.
func (b *Bus) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	msg := Message{
		ID:          uuid.New().String(),
		Data:        data,
		PublishedAt: time.Now().UTC(),
	}

	b.mu.RLock()
	hs := b.handlers[topic]
	b.mu.RUnlock()

	b.logger.Info("publishing message",
		logging.Field{Key: "topic", Value: topic},
		logging.Field{Key: "message_id", Value: msg.ID},
		logging.Field{Key: "handlers", Value: len(hs)})

	for _, h := range hs {
		if err := h(ctx, msg); err != nil {
			b.logger.Error("handler failed",
				logging.Field{Key: "topic", Value: topic},
				logging.Field{Key: "message_id", Value: msg.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	return msg.ID, nil
}

var _ Publisher = (*Bus)(nil)
