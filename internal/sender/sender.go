// Package sender delivers rendered notification content over a channel.
package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/lupppig/notifyflow/internal/domain"
)

var (
	ErrUnregisteredChannel = errors.New("no sender registered for channel")
	ErrMissingDestination  = errors.New("missing destination parameter")
)

// Sender performs one delivery attempt. Implementations take the destination
// from the notification parameters.
type Sender interface {
	Send(ctx context.Context, n *domain.Notification, content string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n *domain.Notification, content string) error

func (f SenderFunc) Send(ctx context.Context, n *domain.Notification, content string) error {
	return f(ctx, n, content)
}

// Registry maps each channel to its Sender. It is built once and read-only
// afterwards.
type Registry struct {
	senders map[domain.Channel]Sender
}

func NewRegistry(senders map[domain.Channel]Sender) (*Registry, error) {
	r := &Registry{senders: make(map[domain.Channel]Sender, len(senders))}
	for ch, s := range senders {
		if !ch.Valid() {
			return nil, fmt.Errorf("register sender: unsupported channel %q", ch)
		}
		if s == nil {
			return nil, fmt.Errorf("register sender: nil sender for %s", ch)
		}
		r.senders[ch] = s
	}
	return r, nil
}

func (r *Registry) Resolve(channel domain.Channel) (Sender, error) {
	s, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredChannel, channel)
	}
	return s, nil
}

// Channels lists the registered channels in the canonical order.
func (r *Registry) Channels() []domain.Channel {
	var out []domain.Channel
	for _, ch := range domain.Channels() {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// stringParam returns the string parameter key, or def when absent or empty.
func stringParam(n *domain.Notification, key, def string) (string, error) {
	params, err := n.Params()
	if err != nil {
		return "", fmt.Errorf("decode parameters: %w", err)
	}
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

func destination(n *domain.Notification, key string) (string, error) {
	to, err := stringParam(n, key, "")
	if err != nil {
		return "", err
	}
	if to == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingDestination, key)
	}
	return to, nil
}
