package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/config"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/intake"
	"github.com/lupppig/notifyflow/internal/reconcile"
	"github.com/lupppig/notifyflow/internal/store"
)

type fakeBackend struct {
	enqueued []intake.Request
	listed   []*domain.Notification
	status   domain.Status
	limit    int
	sweep    reconcile.Result
	outcomes []events.Outcome
	stats    map[domain.Channel]map[domain.Status]int64
	saved    map[string]string
	closed   bool
}

func (f *fakeBackend) Enqueue(ctx context.Context, req intake.Request) ([]*domain.Notification, error) {
	f.enqueued = append(f.enqueued, req)
	now := time.Now()
	created := make([]*domain.Notification, 0, len(req.Channels))
	for i, ch := range req.Channels {
		created = append(created, domain.NewNotification("notif-"+string(rune('a'+i)), ch, req.TemplateName, req.Parameters, now))
	}
	return created, nil
}

func (f *fakeBackend) List(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	f.status, f.limit = status, limit
	return f.listed, nil
}

func (f *fakeBackend) Get(ctx context.Context, id string) (*domain.Notification, error) {
	for _, n := range f.listed {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeBackend) Stats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error) {
	return f.stats[channel], nil
}

func (f *fakeBackend) PutTemplate(ctx context.Context, name, content string) error {
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[name] = content
	return nil
}

func (f *fakeBackend) Sweep(ctx context.Context) reconcile.Result {
	return f.sweep
}

func (f *fakeBackend) WatchOutcomes(channel domain.Channel, fn func(events.Outcome)) (func() error, error) {
	go func() {
		for _, o := range f.outcomes {
			if channel == "" || o.Channel == channel {
				fn(o)
			}
		}
	}()
	return func() error { return nil }, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// useFakeBackend swaps the live backend for fake and resets the output flags
// for the duration of the test.
func useFakeBackend(t *testing.T, fake *fakeBackend) {
	t.Helper()
	origFactory, origCfg := backendFactory, cfg
	origJSON, origQuiet := jsonOut, quiet
	t.Cleanup(func() {
		backendFactory, cfg = origFactory, origCfg
		jsonOut, quiet = origJSON, origQuiet
	})

	cfg = config.DefaultConfig()
	backendFactory = func(ctx context.Context, c *config.Config) (backend, error) {
		return fake, nil
	}
}

func runCommand(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(context.Background())
	t.Cleanup(func() { c.SetOut(nil) })
	err := c.RunE(c, args)
	return out.String(), err
}
