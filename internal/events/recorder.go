package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lupppig/notifyflow/internal/broker"
	"github.com/lupppig/notifyflow/internal/store"
)

// StatsRecorder keeps hourly outcome counts per channel and status.
type StatsRecorder struct {
	stats store.StatsStore
}

func NewStatsRecorder(stats store.StatsStore) *StatsRecorder {
	return &StatsRecorder{stats: stats}
}

func (r *StatsRecorder) Handle(ctx context.Context, o Outcome) error {
	if err := r.stats.IncrementStats(ctx, o.Channel, o.Status, o.Timestamp); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Forwarder republishes outcomes on the broker for out-of-process watchers.
type Forwarder struct {
	publisher broker.Publisher
}

func NewForwarder(publisher broker.Publisher) *Forwarder {
	return &Forwarder{publisher: publisher}
}

func (f *Forwarder) Handle(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return f.publisher.Publish(ctx, broker.OutcomeSubject(o.Channel), data)
}
