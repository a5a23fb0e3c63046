// Package intake turns a notification request into queued per-channel
// notifications.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lupppig/notifyflow/internal/broker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/ids"
	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/store"
)

var ErrInvalidRequest = errors.New("invalid notification request")

type Request struct {
	TemplateName string
	Channels     []domain.Channel
	Parameters   json.RawMessage
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.TemplateName) == "" {
		return fmt.Errorf("%w: template name is required", ErrInvalidRequest)
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrInvalidRequest)
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: unsupported channel %q", ErrInvalidRequest, ch)
		}
	}
	if len(r.Parameters) > 0 {
		var params map[string]any
		if err := json.Unmarshal(r.Parameters, &params); err != nil {
			return fmt.Errorf("%w: parameters must be a JSON object: %v", ErrInvalidRequest, err)
		}
	}
	return nil
}

type Enqueuer struct {
	notifications store.NotificationStore
	publisher     broker.Publisher
	now           func() time.Time
	newID         func() (string, error)
}

func NewEnqueuer(notifications store.NotificationStore, publisher broker.Publisher) *Enqueuer {
	return &Enqueuer{
		notifications: notifications,
		publisher:     publisher,
		now:           time.Now,
		newID:         ids.NewNotificationID,
	}
}

// Enqueue persists one PENDING notification per distinct channel and
// publishes each to its delivery subject. Notifications saved before a
// failure are returned alongside the error.
func (e *Enqueuer) Enqueue(ctx context.Context, req Request) ([]*domain.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	seen := make(map[domain.Channel]bool, len(req.Channels))
	var created []*domain.Notification

	for _, ch := range req.Channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		id, err := e.newID()
		if err != nil {
			return created, fmt.Errorf("generate notification id: %w", err)
		}
		n := domain.NewNotification(id, ch, req.TemplateName, req.Parameters, now)

		if err := e.notifications.Save(ctx, n); err != nil {
			return created, fmt.Errorf("save notification %s: %w", id, err)
		}
		created = append(created, n)

		if err := Publish(ctx, e.publisher, n); err != nil {
			return created, err
		}
		logging.FromContext(logging.WithNotification(ctx, n.ID, string(n.Channel))).Info("notification enqueued",
			slog.String("template", n.TemplateName),
		)
	}
	return created, nil
}

// Publish puts n on the delivery subject of its channel.
func Publish(ctx context.Context, p broker.Publisher, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	if err := p.Publish(ctx, broker.DeliverySubject(n.Channel), data); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}
