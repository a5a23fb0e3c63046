package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/lupppig/notifyflow/internal/broker"
	natsbroker "github.com/lupppig/notifyflow/internal/broker/nats"
	"github.com/lupppig/notifyflow/internal/config"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/intake"
	"github.com/lupppig/notifyflow/internal/reconcile"
	"github.com/lupppig/notifyflow/internal/store"
	"github.com/lupppig/notifyflow/internal/store/postgres"
)

// backend is what the commands need from the store and the queue.
type backend interface {
	Enqueue(ctx context.Context, req intake.Request) ([]*domain.Notification, error)
	List(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error)
	Get(ctx context.Context, id string) (*domain.Notification, error)
	Stats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error)
	PutTemplate(ctx context.Context, name, content string) error
	Sweep(ctx context.Context) reconcile.Result
	WatchOutcomes(channel domain.Channel, fn func(events.Outcome)) (func() error, error)
	Close() error
}

var backendFactory = newLiveBackend

type liveBackend struct {
	db            *postgres.DB
	bus           *natsbroker.Client
	notifications store.NotificationStore
	templates     *postgres.TemplateStore
	stats         store.StatsStore
	enqueuer      *intake.Enqueuer
	sweeper       *reconcile.Sweeper
}

func newLiveBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	db, err := postgres.New(ctx, cfg.Postgres.URL, postgres.Options{
		MaxConns:      2,
		RetryAttempts: 1,
	})
	if err != nil {
		return nil, err
	}
	bus, err := natsbroker.New(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		db.Close()
		return nil, err
	}

	notifications := postgres.NewNotificationStore(db)
	return &liveBackend{
		db:            db,
		bus:           bus,
		notifications: notifications,
		templates:     postgres.NewTemplateStore(db),
		stats:         postgres.NewStatsStore(db),
		enqueuer:      intake.NewEnqueuer(notifications, bus),
		sweeper: reconcile.NewSweeper(reconcile.Config{
			MaxAttempts: cfg.Sweep.MaxAttempts,
			BatchSize:   cfg.Sweep.BatchSize,
		}, notifications, bus),
	}, nil
}

func (b *liveBackend) Enqueue(ctx context.Context, req intake.Request) ([]*domain.Notification, error) {
	return b.enqueuer.Enqueue(ctx, req)
}

func (b *liveBackend) List(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	return b.notifications.FindByStatus(ctx, status, limit)
}

func (b *liveBackend) Get(ctx context.Context, id string) (*domain.Notification, error) {
	return b.notifications.GetByID(ctx, id)
}

func (b *liveBackend) Stats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error) {
	return b.stats.GetStats(ctx, channel)
}

func (b *liveBackend) PutTemplate(ctx context.Context, name, content string) error {
	return b.templates.Upsert(ctx, name, content)
}

func (b *liveBackend) Sweep(ctx context.Context) reconcile.Result {
	return b.sweeper.Sweep(ctx)
}

func (b *liveBackend) WatchOutcomes(channel domain.Channel, fn func(events.Outcome)) (func() error, error) {
	return b.bus.Subscribe(broker.OutcomeFilter(channel), func(data []byte) {
		var o events.Outcome
		if err := json.Unmarshal(data, &o); err != nil {
			slog.Warn("skipping undecodable outcome", slog.Any("error", err))
			return
		}
		fn(o)
	})
}

func (b *liveBackend) Close() error {
	err := b.bus.Close()
	b.db.Close()
	return err
}

func openBackend(ctx context.Context) (backend, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return backendFactory(ctx, cfg)
}
