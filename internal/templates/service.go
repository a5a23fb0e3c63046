package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/store"
)

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrInvalidParameters = errors.New("invalid template parameters")
)

// Service resolves template source cache-aside and renders it.
type Service struct {
	cache    Cache
	store    store.TemplateStore
	renderer *Renderer
	ttl      time.Duration
}

func NewService(cache Cache, templates store.TemplateStore, renderer *Renderer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		cache:    cache,
		store:    templates,
		renderer: renderer,
		ttl:      ttl,
	}
}

// Load returns the raw template source for name. Cache failures are logged
// and fall through to the store.
func (s *Service) Load(ctx context.Context, name string) (string, error) {
	l := logging.FromContext(ctx)

	content, ok, err := s.cache.Get(ctx, name)
	if err != nil {
		l.Warn("template cache read failed", slog.String("code", "CACHE_ERROR"), slog.String("template", name), slog.Any("error", err))
	}
	if ok {
		return content, nil
	}

	tpl, err := s.store.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", name, err)
	}

	if err := s.cache.Set(ctx, name, tpl.Content, s.ttl); err != nil {
		l.Warn("template cache write failed", slog.String("code", "CACHE_ERROR"), slog.String("template", name), slog.Any("error", err))
	}
	return tpl.Content, nil
}

// Render loads template name and renders it with the JSON object params.
func (s *Service) Render(ctx context.Context, name string, params json.RawMessage) (string, error) {
	content, err := s.Load(ctx, name)
	if err != nil {
		return "", err
	}

	vars, err := decodeParams(params)
	if err != nil {
		return "", fmt.Errorf("%w for template %s: %v", ErrInvalidParameters, name, err)
	}

	return s.renderer.Render(content, vars)
}

func decodeParams(params json.RawMessage) (map[string]any, error) {
	vars := make(map[string]any)
	if len(params) == 0 {
		return vars, nil
	}
	if err := json.Unmarshal(params, &vars); err != nil {
		return nil, err
	}
	if vars == nil {
		vars = make(map[string]any)
	}
	return vars, nil
}
