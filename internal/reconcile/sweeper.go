// Package reconcile puts failed notifications back on the queue while they
// still have delivery attempts left.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/lupppig/notifyflow/internal/broker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/intake"
	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/store"
)

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

type Result struct {
	Requeued int `json:"requeued"`
	Errors   int `json:"errors"`
}

type Sweeper struct {
	config        Config
	notifications store.NotificationStore
	publisher     broker.Publisher
	now           func() time.Time
}

func NewSweeper(cfg Config, notifications store.NotificationStore, publisher broker.Publisher) *Sweeper {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		config:        cfg,
		notifications: notifications,
		publisher:     publisher,
		now:           time.Now,
	}
}

// Start sweeps every Interval until ctx is done. A zero Interval disables it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.config.Interval <= 0 {
		slog.Info("reconciliation sweep disabled", slog.String("code", "SYS_STARTUP"))
		return
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	slog.Info("reconciliation sweep started",
		slog.String("code", "SYS_STARTUP"),
		slog.Int("maxAttempts", s.config.MaxAttempts),
		slog.Duration("interval", s.config.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation sweep shutting down", slog.String("code", "SYS_SHUTDOWN"))
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over FAILED notifications that still have attempts
// left. Exhausted notifications are never listed, so they cannot crowd
// retryable ones out of the batch.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	var res Result

	failed, err := s.notifications.FindRetryable(ctx, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		slog.Error("sweep error fetching notifications", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		res.Errors++
		return res
	}

	for _, n := range failed {
		ctx := logging.WithNotification(ctx, n.ID, string(n.Channel))
		l := logging.FromContext(ctx)

		n.Status = domain.StatusPending
		n.UpdatedAt = s.now()
		if err := s.notifications.Save(ctx, n); err != nil {
			l.Error("failed to reset notification", slog.String("code", "DB_ERROR"), slog.Any("error", err))
			res.Errors++
			continue
		}

		if err := intake.Publish(ctx, s.publisher, n); err != nil {
			l.Error("failed to re-enqueue notification", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
			res.Errors++
			continue
		}

		l.Info("re-enqueued failed notification",
			slog.String("code", "DEL_RETRY"),
			slog.Int("attempt", n.Attempts+1),
		)
		res.Requeued++
	}
	return res
}
