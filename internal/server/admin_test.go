package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
)

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthCheck
		code   int
		status string
	}{
		{
			name:   "all healthy",
			checks: map[string]HealthCheck{"postgres": func(context.Context) error { return nil }},
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "one dependency down",
			checks: map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"nats":     func(context.Context) error { return errors.New("nats connection CLOSED") },
			},
			code:   http.StatusServiceUnavailable,
			status: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewAdminRouter(AdminConfig{Checks: tt.checks})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := events.NewMetrics(reg)
	require.NoError(t, err)
	require.NoError(t, metrics.Handle(context.Background(), events.Outcome{Channel: domain.ChannelEmail, Status: domain.StatusSuccess}))

	router := NewAdminRouter(AdminConfig{Gatherer: reg})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notification_sent_total{channel="EMAIL",status="SUCCESS"} 1`)
}

func TestBreakersRequireAPIKey(t *testing.T) {
	router := NewAdminRouter(AdminConfig{
		Auth: NewAuthInterceptor("nf_admin"),
		Breakers: func() map[domain.Channel]breaker.State {
			return map[domain.Channel]breaker.State{domain.ChannelSMS: breaker.StateOpen}
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breakers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/breakers", nil)
	req.Header.Set("X-API-Key", "nf_admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"SMS":"OPEN"}`, rec.Body.String())
}

func TestOutcomesRejectsUnknownChannel(t *testing.T) {
	router := NewAdminRouter(AdminConfig{Hub: events.NewHub()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/outcomes?channel=fax", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutcomesStream(t *testing.T) {
	hub := events.NewHub()
	srv := httptest.NewServer(NewAdminRouter(AdminConfig{Hub: hub}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/outcomes?channel=sms", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(events.Outcome{NotificationID: "ntf_email", Channel: domain.ChannelEmail, Status: domain.StatusSuccess})
	hub.Publish(events.Outcome{NotificationID: "ntf_sms", Channel: domain.ChannelSMS, Status: domain.StatusFailed, Attempts: 1})

	data := readEvent(t, resp.Body)
	var o events.Outcome
	require.NoError(t, json.Unmarshal([]byte(data), &o))
	assert.Equal(t, "ntf_sms", o.NotificationID)
	assert.Equal(t, domain.StatusFailed, o.Status)
}

// readEvent returns the data line of the next server-sent event.
func readEvent(t *testing.T, body io.Reader) string {
	t.Helper()
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
	return ""
}
