package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lupppig/notifyflow/internal/broker"
)

const (
	DefaultStreamName = "NOTIFICATIONS"
	StreamSubjects    = broker.SubjectPrefix + ".>"
)

// Client publishes to and consumes from the notifications stream.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// ConsumerOptions configures the durable pull consumer shared by workers.
type ConsumerOptions struct {
	Durable       string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// New connects to url and creates or updates the stream.
func New(ctx context.Context, url, streamName string) (*Client, error) {
	if streamName == "" {
		streamName = DefaultStreamName
	}

	conn, err := nats.Connect(url, nats.Name("notifyflow"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{StreamSubjects},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   conn,
		js:     js,
		stream: stream,
	}, nil
}

func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// DeliveryConsumer returns the durable consumer over every delivery subject.
func (c *Client) DeliveryConsumer(ctx context.Context, opts ConsumerOptions) (jetstream.Consumer, error) {
	if opts.Durable == "" {
		return nil, errors.New("consumer durable name is required")
	}
	cons, err := c.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		FilterSubject: broker.DeliverPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
		MaxAckPending: opts.MaxAckPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", opts.Durable, err)
	}
	return cons, nil
}

// Subscribe receives messages published on subject from now on, without
// joining the durable consumer. The returned function unsubscribes.
func (c *Client) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Healthcheck reports whether the connection is usable.
func (c *Client) Healthcheck(ctx context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", c.conn.Status())
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
