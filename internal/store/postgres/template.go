package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/store"
)

type TemplateStore struct {
	db *DB
}

func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) FindByName(ctx context.Context, name string) (*domain.Template, error) {
	query := `
		SELECT name, content, created_at, updated_at
		FROM notification_templates
		WHERE name = $1
	`
	var tpl domain.Template
	err := s.db.Pool.QueryRow(ctx, query, name).Scan(
		&tpl.Name,
		&tpl.Content,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", name, err)
	}
	return &tpl, nil
}

// Upsert seeds or replaces a template. The delivery pipeline never calls it.
func (s *TemplateStore) Upsert(ctx context.Context, name, content string) error {
	query := `
		INSERT INTO notification_templates (name, content, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Pool.Exec(ctx, query, name, content, time.Now()); err != nil {
		return fmt.Errorf("upsert template %s: %w", name, err)
	}
	return nil
}
