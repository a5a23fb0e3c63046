package events

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lupppig/notifyflow/internal/domain"
)

// Metrics counts outcomes by status and channel.
type Metrics struct {
	sent *prometheus.CounterVec

	mu     sync.Mutex
	counts map[MetricKey]int64
}

type MetricKey struct {
	Status  domain.Status
	Channel domain.Channel
}

// NewMetrics registers notification_sent_total with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_sent_total",
		Help: "Notifications that finished a delivery cycle, by outcome status and channel.",
	}, []string{"status", "channel"})
	if err := reg.Register(sent); err != nil {
		return nil, err
	}
	return &Metrics{
		sent:   sent,
		counts: make(map[MetricKey]int64),
	}, nil
}

func (m *Metrics) Handle(ctx context.Context, o Outcome) error {
	m.sent.WithLabelValues(string(o.Status), string(o.Channel)).Inc()

	m.mu.Lock()
	m.counts[MetricKey{Status: o.Status, Channel: o.Channel}]++
	m.mu.Unlock()
	return nil
}

// Snapshot copies the counts recorded so far.
func (m *Metrics) Snapshot() map[MetricKey]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[MetricKey]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
