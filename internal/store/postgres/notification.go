package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/store"
)

const notificationColumns = `id, channel, template_name, parameters, status, attempts, created_at, updated_at`

type NotificationStore struct {
	db *DB
}

func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Save upserts by id with the same merge rules as store.Merge.
func (s *NotificationStore) Save(ctx context.Context, n *domain.Notification) error {
	params := n.Parameters
	if len(params) == 0 {
		params = []byte(`{}`)
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = CASE WHEN notifications.status = 'SUCCESS' THEN notifications.status ELSE EXCLUDED.status END,
			attempts = GREATEST(notifications.attempts, EXCLUDED.attempts),
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.Pool.Exec(ctx, query,
		n.ID,
		string(n.Channel),
		n.TemplateName,
		[]byte(params),
		string(n.Status),
		n.Attempts,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", n.ID, err)
	}

	return nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(s.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return n, nil
}

func (s *NotificationStore) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := s.db.Pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications by status: %w", err)
	}
	return collect(rows)
}

func (s *NotificationStore) FindRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'FAILED' AND attempts < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := s.db.Pool.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable notifications: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*domain.Notification, error) {
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n       domain.Notification
		channel string
		status  string
		params  []byte
	)
	err := row.Scan(
		&n.ID,
		&channel,
		&n.TemplateName,
		&params,
		&status,
		&n.Attempts,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Channel = domain.Channel(channel)
	n.Status = domain.Status(status)
	n.Parameters = params
	return &n, nil
}
