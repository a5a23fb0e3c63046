// Package worker consumes queued notifications and runs each through the
// delivery pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/logging"
)

// Message is the part of a queue message the pool acts on.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Source hands out up to batch messages, waiting a bounded time for them.
type Source interface {
	Next(ctx context.Context, batch int) ([]Message, error)
}

type Processor interface {
	Process(ctx context.Context, n *domain.Notification) (events.Outcome, error)
}

type Config struct {
	Workers int
	Batch   int
	// RedeliveryDelay is asked of the queue when a cycle could not be persisted.
	RedeliveryDelay time.Duration
	// FetchBackoff is the pause after a failed fetch.
	FetchBackoff time.Duration
}

type Pool struct {
	source    Source
	processor Processor
	cfg       Config
}

func NewPool(source Source, processor Processor, cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}
	return &Pool{source: source, processor: processor, cfg: cfg}
}

// Run blocks until ctx is done and every worker has finished its current message.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 1; i <= p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(logging.WithWorker(ctx, id))
		}(i)
	}
	slog.Info("worker pool started", slog.String("code", "SYS_STARTUP"), slog.Int("workers", p.cfg.Workers))

	wg.Wait()
	slog.Info("worker pool stopped", slog.String("code", "SYS_SHUTDOWN"))
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context) {
	l := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := p.source.Next(ctx, p.cfg.Batch)
		if err != nil && ctx.Err() == nil {
			l.Error("error fetching messages", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.FetchBackoff):
			}
		}

		for _, msg := range msgs {
			p.processMessage(ctx, msg)
		}
	}
}

func (p *Pool) processMessage(ctx context.Context, msg Message) {
	l := logging.FromContext(ctx)

	n, err := decode(msg.Data())
	if err != nil {
		l.Error("dropping undecodable message", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
		if err := msg.Term(); err != nil {
			l.Error("failed to terminate message", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
		}
		return
	}

	if _, err := p.processor.Process(ctx, n); err != nil {
		l.Warn("processing incomplete, message will be redelivered",
			slog.String("code", "DEL_RETRY"),
			slog.String("notification_id", n.ID),
			slog.Any("error", err),
		)
		if err := nak(msg, p.cfg.RedeliveryDelay); err != nil {
			l.Error("failed to nak message", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		l.Error("failed to ack message", slog.String("code", "BROKER_ERROR"), slog.String("notification_id", n.ID), slog.Any("error", err))
	}
}

func nak(msg Message, delay time.Duration) error {
	if delay > 0 {
		return msg.NakWithDelay(delay)
	}
	return msg.Nak()
}

func decode(data []byte) (*domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	if n.ID == "" {
		return nil, errors.New("notification without id")
	}
	if !n.Channel.Valid() {
		return nil, fmt.Errorf("notification %s: unsupported channel %q", n.ID, n.Channel)
	}
	if n.Status == "" {
		n.Status = domain.StatusPending
	}
	return &n, nil
}

// JetStreamSource pulls from a durable JetStream consumer.
type JetStreamSource struct {
	consumer jetstream.Consumer
	maxWait  time.Duration
}

func NewJetStreamSource(consumer jetstream.Consumer, maxWait time.Duration) *JetStreamSource {
	return &JetStreamSource{consumer: consumer, maxWait: maxWait}
}

func (s *JetStreamSource) Next(ctx context.Context, batch int) ([]Message, error) {
	b, err := s.consumer.Fetch(batch, jetstream.FetchMaxWait(s.maxWait))
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for msg := range b.Messages() {
		msgs = append(msgs, msg)
	}
	if err := b.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return msgs, err
	}
	return msgs, nil
}
