// Package pipeline runs the delivery cycle for a single notification.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/sender"
	"github.com/lupppig/notifyflow/internal/store"
	"github.com/lupppig/notifyflow/internal/templates"
)

var (
	ErrRender        = errors.New("render failed")
	ErrConfiguration = errors.New("configuration defect")
	ErrTransport     = errors.New("delivery failed")
	ErrPersist       = errors.New("persist notification")

	// ErrCircuitOpen marks a terminal failure where the channel breaker
	// rejected the final attempt without reaching the provider.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUnavailable marks an infrastructure failure (template store down)
	// that says nothing about the notification itself.
	ErrUnavailable = errors.New("dependency unavailable")
)

type Renderer interface {
	Render(ctx context.Context, name string, params json.RawMessage) (string, error)
}

type SenderResolver interface {
	Resolve(channel domain.Channel) (sender.Sender, error)
}

type Dispatcher interface {
	SendWithPolicy(ctx context.Context, channel domain.Channel, s sender.Sender, n *domain.Notification, content string) error
}

type OutcomePublisher interface {
	Publish(ctx context.Context, o events.Outcome)
}

type Option func(*Orchestrator)

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithPersistRetry bounds how often a failed save is retried before the cycle
// gives up and the message is redelivered.
func WithPersistRetry(retries uint64, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.persistRetries = retries
		if backoff > 0 {
			o.persistBackoff = backoff
		}
	}
}

// WithFinishTimeout bounds the persist and outcome publish that follow a
// dispatched send. They run detached from the caller's cancellation so a
// shutdown arriving after the provider accepted the message cannot lose the
// terminal state.
func WithFinishTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.finishTimeout = d
		}
	}
}

type Orchestrator struct {
	templates     Renderer
	senders       SenderResolver
	policies      Dispatcher
	notifications store.NotificationStore
	sink          OutcomePublisher

	now            func() time.Time
	persistRetries uint64
	persistBackoff time.Duration
	finishTimeout  time.Duration
}

func NewOrchestrator(
	templates Renderer,
	senders SenderResolver,
	policies Dispatcher,
	notifications store.NotificationStore,
	sink OutcomePublisher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		templates:      templates,
		senders:        senders,
		policies:       policies,
		notifications:  notifications,
		sink:           sink,
		now:            time.Now,
		persistRetries: 3,
		persistBackoff: 200 * time.Millisecond,
		finishTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process takes n through render, dispatch, persist and notify. Delivery
// failures are recorded on the notification and reported in the outcome; the
// returned error is non-nil only when the terminal state could not be
// persisted, in which case the message must not be acknowledged.
func (o *Orchestrator) Process(ctx context.Context, n *domain.Notification) (events.Outcome, error) {
	ctx = logging.WithNotification(ctx, n.ID, string(n.Channel))
	l := logging.FromContext(ctx)
	l.Info("notification received",
		slog.String("code", "DEL_RECEIVED"),
		slog.String("template", n.TemplateName),
		slog.Int("attempts", n.Attempts),
	)

	cause := o.deliver(ctx, n)
	if errors.Is(cause, ErrUnavailable) {
		return events.Outcome{}, cause
	}
	if cause != nil && ctx.Err() != nil {
		// Shutdown interrupted the send: leave the message for redelivery.
		return events.Outcome{}, fmt.Errorf("delivery interrupted: %w", errors.Join(ctx.Err(), cause))
	}

	if cause == nil {
		n.Status = domain.StatusSuccess
	} else {
		n.Status = domain.StatusFailed
	}
	n.UpdatedAt = o.now()

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.finishTimeout)
	defer cancel()

	if err := o.persist(finishCtx, n); err != nil {
		l.Error("failed to persist notification", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return events.Outcome{}, fmt.Errorf("%w %s: %w", ErrPersist, n.ID, err)
	}

	if cause == nil {
		l.Info("notification delivered", slog.String("code", "DEL_SUCCESS"), slog.Int("attempts", n.Attempts))
	} else {
		l.Warn("notification failed",
			slog.String("code", "DEL_FAILED"),
			slog.String("reason", FailureReason(cause)),
			slog.Int("attempts", n.Attempts),
			slog.Any("error", cause),
		)
	}

	outcome := events.NewOutcome(n, cause)
	outcome.Failure = FailureReason(cause)
	o.sink.Publish(finishCtx, outcome)
	return outcome, nil
}

// deliver renders and sends n, returning the classified failure. Attempts is
// incremented once when a send was dispatched, however many retries it took.
func (o *Orchestrator) deliver(ctx context.Context, n *domain.Notification) error {
	l := logging.FromContext(ctx)

	content, err := o.templates.Render(ctx, n.TemplateName, n.Parameters)
	switch {
	case err == nil:
	case errors.Is(err, templates.ErrTemplateNotFound):
		l.Warn("template not found", slog.String("code", "TPL_NOT_FOUND"), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrRender, err)
	case errors.Is(err, templates.ErrInvalidParameters), errors.Is(err, templates.ErrRender):
		l.Warn("render failed", slog.String("code", "TPL_INVALID_PARAMS"), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrRender, err)
	default:
		l.Error("template lookup failed", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s, err := o.senders.Resolve(n.Channel)
	if err != nil {
		l.Error("no sender for channel", slog.String("code", "CFG_DEFECT"), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	err = o.policies.SendWithPolicy(ctx, n.Channel, s, n, content)
	n.Attempts++
	if errors.Is(err, breaker.ErrOpen) {
		return fmt.Errorf("%w: %w: %w", ErrTransport, ErrCircuitOpen, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// FailureReason names the class of a terminal delivery failure.
func FailureReason(cause error) string {
	switch {
	case cause == nil:
		return ""
	case errors.Is(cause, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(cause, ErrRender):
		return "render"
	case errors.Is(cause, ErrConfiguration):
		return "configuration"
	default:
		return "transport"
	}
}

func (o *Orchestrator) persist(ctx context.Context, n *domain.Notification) error {
	backoff := goretry.WithMaxRetries(o.persistRetries, goretry.NewConstant(o.persistBackoff))
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := o.notifications.Save(ctx, n); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return err
			}
			return goretry.RetryableError(err)
		}
		return nil
	})
}
