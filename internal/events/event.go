// Package events carries delivery outcomes from the pipeline to observers.
package events

import (
	"context"
	"time"

	"github.com/lupppig/notifyflow/internal/domain"
)

// Outcome is the terminal result of one delivery cycle.
type Outcome struct {
	NotificationID string         `json:"notification_id"`
	Channel        domain.Channel `json:"channel"`
	Status         domain.Status  `json:"status"`
	Attempts       int            `json:"attempts"`
	Reason         string         `json:"reason,omitempty"`
	Failure        string         `json:"failure,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewOutcome snapshots n after a cycle. cause is the failure, if any.
func NewOutcome(n *domain.Notification, cause error) Outcome {
	o := Outcome{
		NotificationID: n.ID,
		Channel:        n.Channel,
		Status:         n.Status,
		Attempts:       n.Attempts,
		Timestamp:      n.UpdatedAt,
	}
	if cause != nil {
		o.Reason = cause.Error()
	}
	return o
}

// Handler observes outcomes. A returned error is logged and otherwise ignored.
type Handler interface {
	Handle(ctx context.Context, o Outcome) error
}

type HandlerFunc func(ctx context.Context, o Outcome) error

func (f HandlerFunc) Handle(ctx context.Context, o Outcome) error {
	return f(ctx, o)
}
