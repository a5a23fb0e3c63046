package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lupppig/notifyflow/internal/domain"
)

type Subscriber struct {
	ID             string
	NotificationID string         // Filter by notification ID (empty = all)
	Channel        domain.Channel // Filter by channel (empty = all)
	Events         chan Outcome
}

// NewSubscriber returns a subscriber with a fresh ID and a buffer of size buffer.
func NewSubscriber(channel domain.Channel, notificationID string, buffer int) *Subscriber {
	return &Subscriber{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Channel:        channel,
		Events:         make(chan Outcome, buffer),
	}
}

// Hub fans outcomes out to live stream subscribers.
type Hub struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
	}
}

func (h *Hub) Subscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.Events)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Publish(o Outcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if h.matchesFilter(sub, o) {
			select {
			case sub.Events <- o:
			default:
				// Non-blocking: skip if subscriber buffer is full
			}
		}
	}
}

// Handle lets the Hub subscribe to a Sink.
func (h *Hub) Handle(ctx context.Context, o Outcome) error {
	h.Publish(o)
	return nil
}

func (h *Hub) matchesFilter(sub *Subscriber, o Outcome) bool {
	if sub.NotificationID != "" && sub.NotificationID != o.NotificationID {
		return false
	}
	if sub.Channel != "" && sub.Channel != o.Channel {
		return false
	}
	return true
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
