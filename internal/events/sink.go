package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lupppig/notifyflow/internal/logging"
)

const defaultHandlerTimeout = 5 * time.Second

type namedHandler struct {
	name    string
	handler Handler
}

type SinkOption func(*Sink)

// WithHandlerTimeout caps how long a single handler may hold Publish.
func WithHandlerTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Sink delivers each published outcome to every subscribed handler in
// subscription order, on the publishing goroutine. A failing, panicking or
// slow handler does not affect the others or the publisher: each one runs
// under its own deadline and is abandoned once it passes.
type Sink struct {
	mu       sync.RWMutex
	handlers []namedHandler
	timeout  time.Duration
}

func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{timeout: defaultHandlerTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Subscribe(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, namedHandler{name: name, handler: h})
}

func (s *Sink) Publish(ctx context.Context, o Outcome) {
	s.mu.RLock()
	handlers := make([]namedHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, h := range handlers {
		if err := s.run(ctx, h.handler, o); err != nil {
			logging.FromContext(ctx).Error("outcome handler failed",
				slog.String("code", "EVT_HANDLER_FAILED"),
				slog.String("handler", h.name),
				slog.Any("error", err),
			)
		}
	}
}

// run invokes h under the handler deadline. A handler that ignores its
// context is left running in the background and reported as timed out.
func (s *Sink) run(ctx context.Context, h Handler, o Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- invoke(ctx, h, o) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler abandoned: %w", ctx.Err())
	}
}

func invoke(ctx context.Context, h Handler, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, o)
}
