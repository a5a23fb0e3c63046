// Package resilience composes the retry policy around the circuit breaker
// for each delivery channel.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/retry"
	"github.com/lupppig/notifyflow/internal/sender"
)

// Chain is retry(outer) around breaker(inner). A call rejected by an open
// breaker consumes one retry attempt like any other failure.
type Chain struct {
	retry   *retry.Policy
	breaker *breaker.Breaker
}

func NewChain(policy *retry.Policy, b *breaker.Breaker) *Chain {
	c := &Chain{retry: policy, breaker: b}
	if policy.OnRetry == nil {
		policy.OnRetry = c.logRetry
	}
	return c
}

func (c *Chain) Breaker() *breaker.Breaker {
	return c.breaker
}

// Send delivers content through s. It returns nil on the first successful
// attempt, or the last failure once the retry budget is spent.
func (c *Chain) Send(ctx context.Context, s sender.Sender, n *domain.Notification, content string) error {
	return c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := c.breaker.Execute(func() error {
			return s.Send(ctx, n, content)
		})
		if err != nil {
			logFailure(ctx, attempt, err)
		}
		return err
	})
}

func (c *Chain) logRetry(ctx context.Context, attempt int, delay time.Duration, err error) {
	logging.FromContext(ctx).Info("retrying delivery",
		slog.String("code", "DEL_RETRY"),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}

func logFailure(ctx context.Context, attempt int, err error) {
	l := logging.FromContext(ctx)
	if errors.Is(err, breaker.ErrOpen) {
		l.Warn("delivery short-circuited", slog.String("code", "CB_OPEN"), slog.Int("attempt", attempt))
		return
	}
	l.Warn("delivery attempt failed",
		slog.String("code", "DEL_TRANSPORT"),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	)
}

// Policies holds one Chain per channel. Breaker state is shared by every
// worker delivering on the same channel.
type Policies struct {
	chains map[domain.Channel]*Chain
}

// PolicySource yields the retry and breaker settings for a channel.
type PolicySource func(channel domain.Channel) (retry.Config, breaker.Config)

func NewPolicies(source PolicySource) *Policies {
	p := &Policies{chains: make(map[domain.Channel]*Chain)}
	for _, ch := range domain.Channels() {
		rc, bc := source(ch)
		p.chains[ch] = NewChain(retry.NewPolicy(rc), breaker.New(ch.Subject(), bc))
	}
	return p
}

// Chain returns the chain for channel, or nil when the channel is unknown.
func (p *Policies) Chain(channel domain.Channel) *Chain {
	return p.chains[channel]
}

func (p *Policies) SendWithPolicy(ctx context.Context, channel domain.Channel, s sender.Sender, n *domain.Notification, content string) error {
	c, ok := p.chains[channel]
	if !ok {
		return fmt.Errorf("no resilience policy for channel %s", channel)
	}
	return c.Send(ctx, s, n, content)
}

// BreakerStates reports the current breaker state of every channel.
func (p *Policies) BreakerStates() map[domain.Channel]breaker.State {
	out := make(map[domain.Channel]breaker.State, len(p.chains))
	for ch, c := range p.chains {
		out[ch] = c.breaker.State()
	}
	return out
}
