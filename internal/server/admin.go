package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type AdminConfig struct {
	Hub      *events.Hub
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
	Breakers func() map[domain.Channel]breaker.State
	Auth     *AuthInterceptor
}

type admin struct {
	cfg AdminConfig
}

// NewAdminRouter serves /healthz, /metrics, /breakers and the /outcomes
// event stream.
func NewAdminRouter(cfg AdminConfig) http.Handler {
	if cfg.Auth == nil {
		cfg.Auth = NewAuthInterceptor("")
	}
	a := &admin{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.HTTP)
		r.Get("/breakers", a.breakers)
		r.Get("/outcomes", a.outcomes)
	})
	return r
}

func (a *admin) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	code := http.StatusOK
	checks := make(map[string]string, len(a.cfg.Checks))
	for name, check := range a.cfg.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if code != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": state, "checks": checks})
}

func (a *admin) breakers(w http.ResponseWriter, r *http.Request) {
	states := map[domain.Channel]breaker.State{}
	if a.cfg.Breakers != nil {
		states = a.cfg.Breakers()
	}
	writeJSON(w, http.StatusOK, states)
}

func (a *admin) outcomes(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Hub == nil {
		http.Error(w, "outcome stream not available", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var channel domain.Channel
	if raw := r.URL.Query().Get("channel"); raw != "" {
		ch, err := domain.ParseChannel(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		channel = ch
	}

	sub := events.NewSubscriber(channel, r.URL.Query().Get("notification_id"), 64)
	a.cfg.Hub.Subscribe(sub)
	defer a.cfg.Hub.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case o, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(o)
			if err != nil {
				slog.Error("failed to encode outcome", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: outcome\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
