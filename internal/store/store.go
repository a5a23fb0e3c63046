package store

import (
	"context"
	"errors"
	"time"

	"github.com/lupppig/notifyflow/internal/domain"
)

var ErrNotFound = errors.New("not found")

// NotificationStore is the durable record of each notification's state.
// Save is an idempotent upsert by ID: attempts never decrease and a
// SUCCESS record is never downgraded.
type NotificationStore interface {
	Save(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error)
	// FindRetryable lists FAILED notifications with fewer than maxAttempts
	// attempts, least recently updated first.
	FindRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error)
}

type TemplateStore interface {
	FindByName(ctx context.Context, name string) (*domain.Template, error)
}

// StatsStore keeps hourly outcome counters per channel and status.
type StatsStore interface {
	IncrementStats(ctx context.Context, channel domain.Channel, status domain.Status, t time.Time) error
	GetStats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error)
}

// Merge applies the upsert rules shared by every NotificationStore
// implementation to an incoming record and the currently stored one.
func Merge(existing, incoming *domain.Notification) *domain.Notification {
	merged := *incoming
	if existing == nil {
		return &merged
	}
	merged.CreatedAt = existing.CreatedAt
	if existing.Attempts > merged.Attempts {
		merged.Attempts = existing.Attempts
	}
	if existing.Status == domain.StatusSuccess {
		merged.Status = domain.StatusSuccess
	}
	return &merged
}
