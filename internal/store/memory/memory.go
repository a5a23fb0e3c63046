// Package memory holds in-process store implementations for tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/store"
)

type NotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	saves         int
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		notifications: make(map[string]*domain.Notification),
	}
}

func (s *NotificationStore) Save(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = store.Merge(s.notifications[n.ID], n)
	s.saves++
	return nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (s *NotificationStore) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	return s.find(limit, func(n *domain.Notification) bool {
		return n.Status == status
	}), nil
}

func (s *NotificationStore) FindRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error) {
	return s.find(limit, func(n *domain.Notification) bool {
		return n.Status == domain.StatusFailed && n.Attempts < maxAttempts
	}), nil
}

func (s *NotificationStore) find(limit int, match func(*domain.Notification) bool) []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range s.notifications {
		if match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Saves reports how many times Save has been called.
func (s *NotificationStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*domain.Template
	lookups   int
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]*domain.Template)}
}

func (s *TemplateStore) Put(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.templates[name] = &domain.Template{Name: name, Content: content, CreatedAt: now, UpdatedAt: now}
}

func (s *TemplateStore) FindByName(ctx context.Context, name string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	tpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", name, store.ErrNotFound)
	}
	cp := *tpl
	return &cp, nil
}

// Lookups reports how many times FindByName has been called.
func (s *TemplateStore) Lookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}

type statsKey struct {
	channel domain.Channel
	status  domain.Status
	hour    time.Time
}

type StatsStore struct {
	mu     sync.Mutex
	counts map[statsKey]int64
}

func NewStatsStore() *StatsStore {
	return &StatsStore{counts: make(map[statsKey]int64)}
}

func (s *StatsStore) IncrementStats(ctx context.Context, channel domain.Channel, status domain.Status, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[statsKey{channel: channel, status: status, hour: t.Truncate(time.Hour)}]++
	return nil
}

func (s *StatsStore) GetStats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[domain.Status]int64)
	for k, v := range s.counts {
		if k.channel == channel {
			stats[k.status] += v
		}
	}
	return stats, nil
}
