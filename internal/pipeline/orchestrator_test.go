package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/resilience"
	"github.com/lupppig/notifyflow/internal/retry"
	"github.com/lupppig/notifyflow/internal/sender"
	"github.com/lupppig/notifyflow/internal/store"
	"github.com/lupppig/notifyflow/internal/store/memory"
	"github.com/lupppig/notifyflow/internal/templates"
)

var (
	fixedNow   = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	errGateway = errors.New("gateway unavailable")
)

// scriptedSender fails the first failures calls and records delivered content.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	content  []string
}

func (s *scriptedSender) Send(ctx context.Context, n *domain.Notification, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errGateway
	}
	s.content = append(s.content, content)
	return nil
}

type outcomeRecorder struct {
	outcomes []events.Outcome
}

func (r *outcomeRecorder) Handle(ctx context.Context, o events.Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

type harness struct {
	orchestrator  *Orchestrator
	notifications *memory.NotificationStore
	templates     *memory.TemplateStore
	email         *scriptedSender
	sms           *scriptedSender
	recorder      *outcomeRecorder
	sink          *events.Sink
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	notifications store.NotificationStore
	templates     store.TemplateStore
	opts          []Option
}

func withNotificationStore(s store.NotificationStore) harnessOption {
	return func(c *harnessConfig) { c.notifications = s }
}

func withTemplateStore(s store.TemplateStore) harnessOption {
	return func(c *harnessConfig) { c.templates = s }
}

func newHarness(t *testing.T, maxAttempts int, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		notifications: memory.NewNotificationStore(),
		templates:     memory.NewTemplateStore(),
		email:         &scriptedSender{},
		sms:           &scriptedSender{},
		recorder:      &outcomeRecorder{},
		sink:          events.NewSink(),
	}
	h.templates.Put("welcome", "<p>Welcome {{.username}}</p>")
	h.templates.Put("otp", "Your code is {{.code}}")

	cfg := &harnessConfig{notifications: h.notifications, templates: h.templates}
	for _, opt := range opts {
		opt(cfg)
	}

	registry, err := sender.NewRegistry(map[domain.Channel]sender.Sender{
		domain.ChannelEmail: h.email,
		domain.ChannelSMS:   h.sms,
	})
	require.NoError(t, err)

	policies := resilience.NewPolicies(func(domain.Channel) (retry.Config, breaker.Config) {
		return retry.Config{MaxAttempts: maxAttempts, Strategy: retry.StrategyFixed}, breaker.Config{
			FailureRateThreshold: 1,
			MinimumCalls:         1000,
			Window:               time.Minute,
			CoolDown:             time.Minute,
			HalfOpenMaxCalls:     1,
		}
	})

	svc := templates.NewService(templates.NewMemoryCache(), cfg.templates, templates.NewRenderer(), time.Hour)
	h.sink.Subscribe("recorder", h.recorder)

	orchestratorOpts := append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithPersistRetry(3, time.Millisecond),
	}, cfg.opts...)
	h.orchestrator = NewOrchestrator(svc, registry, policies, cfg.notifications, h.sink, orchestratorOpts...)
	return h
}

func pending(t *testing.T, s store.NotificationStore, id string, ch domain.Channel, tpl, params string) *domain.Notification {
	t.Helper()
	n := domain.NewNotification(id, ch, tpl, json.RawMessage(params), fixedNow.Add(-time.Minute))
	if s != nil {
		require.NoError(t, s.Save(context.Background(), n))
	}
	cp := *n
	return &cp
}

func TestProcessEmailSuccess(t *testing.T) {
	h := newHarness(t, 3)
	n := pending(t, h.notifications, "ntf_1", domain.ChannelEmail, "welcome", `{"username":"ada","email":"a@example.com"}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, []string{"<p>Welcome ada</p>"}, h.email.content)

	stored, err := h.notifications.GetByID(context.Background(), "ntf_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, fixedNow, stored.UpdatedAt)

	require.Len(t, h.recorder.outcomes, 1)
	assert.Equal(t, outcome, h.recorder.outcomes[0])
	assert.Equal(t, fixedNow, outcome.Timestamp)
}

func TestProcessTransportFailureExhaustsRetries(t *testing.T) {
	h := newHarness(t, 3)
	h.sms.failures = 100
	n := pending(t, h.notifications, "ntf_2", domain.ChannelSMS, "otp", `{"code":"1234","phoneNumber":"+15550100"}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, 3, h.sms.calls)
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts, "attempts count whole wrapped calls, not inner retries")
	assert.Contains(t, outcome.Reason, errGateway.Error())

	stored, err := h.notifications.GetByID(context.Background(), "ntf_2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	require.Len(t, h.recorder.outcomes, 1)
	assert.Equal(t, domain.ChannelSMS, h.recorder.outcomes[0].Channel)
	assert.Equal(t, domain.StatusFailed, h.recorder.outcomes[0].Status)
}

func TestProcessSucceedsOnLastRetry(t *testing.T) {
	h := newHarness(t, 4)
	h.sms.failures = 3
	n := pending(t, h.notifications, "ntf_3", domain.ChannelSMS, "otp", `{"code":"9"}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, 4, h.sms.calls)
	assert.Equal(t, domain.StatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestProcessRenderFailures(t *testing.T) {
	tests := []struct {
		name     string
		template string
		params   string
		cause    error
	}{
		{name: "missing template", template: "does-not-exist", params: `{}`, cause: templates.ErrTemplateNotFound},
		{name: "parameters not an object", template: "welcome", params: `[1,2,3]`, cause: templates.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 3)
			n := pending(t, h.notifications, "ntf_r", domain.ChannelEmail, tt.template, tt.params)

			outcome, err := h.orchestrator.Process(context.Background(), n)
			require.NoError(t, err)

			assert.Zero(t, h.email.calls, "no send may be attempted")
			assert.Equal(t, domain.StatusFailed, outcome.Status)
			assert.Equal(t, 0, outcome.Attempts)
			assert.Contains(t, outcome.Reason, ErrRender.Error())
			assert.Contains(t, outcome.Reason, tt.cause.Error())

			stored, err := h.notifications.GetByID(context.Background(), "ntf_r")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusFailed, stored.Status)
			assert.Equal(t, 0, stored.Attempts)
			require.Len(t, h.recorder.outcomes, 1)
		})
	}
}

func TestProcessUnregisteredChannel(t *testing.T) {
	h := newHarness(t, 3)
	n := pending(t, h.notifications, "ntf_p", domain.ChannelPush, "welcome", `{}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Equal(t, 0, outcome.Attempts)
	assert.Contains(t, outcome.Reason, ErrConfiguration.Error())
}

func TestProcessRedeliveryConverges(t *testing.T) {
	h := newHarness(t, 1)
	original := pending(t, h.notifications, "ntf_dup", domain.ChannelEmail, "welcome", `{"username":"ada"}`)
	redelivered := *original

	_, err := h.orchestrator.Process(context.Background(), original)
	require.NoError(t, err)

	// The redelivered copy fails this time; the stored SUCCESS must stand.
	h.email.failures = h.email.calls + 1
	_, err = h.orchestrator.Process(context.Background(), &redelivered)
	require.NoError(t, err)

	stored, err := h.notifications.GetByID(context.Background(), "ntf_dup")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Len(t, h.recorder.outcomes, 2)
}

func TestProcessIgnoresFailingOutcomeHandler(t *testing.T) {
	h := newHarness(t, 3)
	h.sink.Subscribe("broken", events.HandlerFunc(func(ctx context.Context, o events.Outcome) error {
		panic("observer crashed")
	}))
	n := pending(t, h.notifications, "ntf_h", domain.ChannelEmail, "welcome", `{}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, outcome.Status)
}

// flakyStore fails the first failures saves.
type flakyStore struct {
	*memory.NotificationStore
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) Save(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return s.NotificationStore.Save(ctx, n)
}

func TestProcessRetriesPersistence(t *testing.T) {
	fs := &flakyStore{NotificationStore: memory.NewNotificationStore(), failures: 2}
	h := newHarness(t, 3, withNotificationStore(fs))
	n := pending(t, nil, "ntf_db", domain.ChannelEmail, "welcome", `{}`)

	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, outcome.Status)
	assert.Equal(t, 3, fs.attempts)

	stored, err := fs.GetByID(context.Background(), "ntf_db")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
}

func TestProcessPersistenceFailureIsReturned(t *testing.T) {
	fs := &flakyStore{NotificationStore: memory.NewNotificationStore(), failures: 100}
	h := newHarness(t, 3, withNotificationStore(fs))
	n := pending(t, nil, "ntf_db", domain.ChannelEmail, "welcome", `{}`)

	_, err := h.orchestrator.Process(context.Background(), n)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, 4, fs.attempts, "one try plus three retries")
	assert.Empty(t, h.recorder.outcomes, "no outcome before the state is durable")
}

type brokenTemplateStore struct{}

func (brokenTemplateStore) FindByName(ctx context.Context, name string) (*domain.Template, error) {
	return nil, errors.New("too many connections")
}

func TestProcessTemplateStoreUnavailable(t *testing.T) {
	h := newHarness(t, 3, withTemplateStore(brokenTemplateStore{}))
	n := pending(t, h.notifications, "ntf_u", domain.ChannelEmail, "welcome", `{}`)
	saves := h.notifications.Saves()

	_, err := h.orchestrator.Process(context.Background(), n)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, saves, h.notifications.Saves(), "nothing persisted")
	assert.Zero(t, h.email.calls)
	assert.Empty(t, h.recorder.outcomes)
}

func TestProcessCancelledDuringSend(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	registry, err := sender.NewRegistry(map[domain.Channel]sender.Sender{
		domain.ChannelEmail: sender.SenderFunc(func(ctx context.Context, n *domain.Notification, content string) error {
			cancel()
			return ctx.Err()
		}),
	})
	require.NoError(t, err)
	h.orchestrator.senders = registry

	n := pending(t, h.notifications, "ntf_c", domain.ChannelEmail, "welcome", `{}`)
	_, err = h.orchestrator.Process(ctx, n)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	stored, err := h.notifications.GetByID(context.Background(), "ntf_c")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestProcessCancelledAfterSendStillPersists(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	registry, err := sender.NewRegistry(map[domain.Channel]sender.Sender{
		domain.ChannelEmail: sender.SenderFunc(func(ctx context.Context, n *domain.Notification, content string) error {
			calls++
			cancel()
			return nil
		}),
	})
	require.NoError(t, err)
	h.orchestrator.senders = registry

	var publishErr error
	h.sink.Subscribe("context", events.HandlerFunc(func(ctx context.Context, o events.Outcome) error {
		publishErr = ctx.Err()
		return nil
	}))

	n := pending(t, h.notifications, "ntf_late", domain.ChannelEmail, "welcome", `{"username":"ada"}`)
	outcome, err := h.orchestrator.Process(ctx, n)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.StatusSuccess, outcome.Status)
	stored, err := h.notifications.GetByID(context.Background(), "ntf_late")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	require.Len(t, h.recorder.outcomes, 1)
	assert.NoError(t, publishErr, "outcome handlers see a live context")
}

type dispatcherFunc func(ctx context.Context, channel domain.Channel, s sender.Sender, n *domain.Notification, content string) error

func (f dispatcherFunc) SendWithPolicy(ctx context.Context, channel domain.Channel, s sender.Sender, n *domain.Notification, content string) error {
	return f(ctx, channel, s, n, content)
}

func TestProcessClassifiesOpenCircuit(t *testing.T) {
	h := newHarness(t, 3)

	b := breaker.New("notifications.email", breaker.Config{
		FailureRateThreshold: 1,
		MinimumCalls:         1,
		Window:               time.Minute,
		CoolDown:             time.Hour,
		HalfOpenMaxCalls:     1,
	})
	require.Error(t, b.Execute(func() error { return errGateway }))
	h.orchestrator.policies = dispatcherFunc(func(ctx context.Context, channel domain.Channel, s sender.Sender, n *domain.Notification, content string) error {
		return b.Execute(func() error { return s.Send(ctx, n, content) })
	})

	n := pending(t, h.notifications, "ntf_open", domain.ChannelEmail, "welcome", `{}`)
	outcome, err := h.orchestrator.Process(context.Background(), n)
	require.NoError(t, err)

	assert.Zero(t, h.email.calls, "open breaker never reaches the provider")
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Equal(t, "circuit_open", outcome.Failure)
	assert.Contains(t, outcome.Reason, ErrCircuitOpen.Error())
	require.Len(t, h.recorder.outcomes, 1)
	assert.Equal(t, "circuit_open", h.recorder.outcomes[0].Failure)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  string
	}{
		{name: "success", cause: nil, want: ""},
		{name: "circuit open", cause: fmt.Errorf("%w: %w: %w", ErrTransport, ErrCircuitOpen, breaker.ErrOpen), want: "circuit_open"},
		{name: "transport", cause: fmt.Errorf("%w: %w", ErrTransport, errGateway), want: "transport"},
		{name: "render", cause: fmt.Errorf("%w: %w", ErrRender, templates.ErrTemplateNotFound), want: "render"},
		{name: "configuration", cause: fmt.Errorf("%w: no sender", ErrConfiguration), want: "configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureReason(tt.cause))
		})
	}
}
