package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lupppig/notifyflow/internal/domain"
)

type StatsStore struct {
	db *DB
}

func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) IncrementStats(ctx context.Context, channel domain.Channel, status domain.Status, t time.Time) error {
	hourBucket := t.Truncate(time.Hour)

	query := `
		INSERT INTO notification_stats (channel, status, hour_bucket, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (channel, status, hour_bucket)
		DO UPDATE SET count = notification_stats.count + 1
	`
	_, err := s.db.Pool.Exec(ctx, query, string(channel), string(status), hourBucket)
	if err != nil {
		return fmt.Errorf("increment status stats: %w", err)
	}
	return nil
}

func (s *StatsStore) GetStats(ctx context.Context, channel domain.Channel) (map[domain.Status]int64, error) {
	query := `
		SELECT status, SUM(count)::BIGINT AS total
		FROM notification_stats
		WHERE channel = $1
		GROUP BY status
	`
	rows, err := s.db.Pool.Query(ctx, query, string(channel))
	if err != nil {
		return nil, fmt.Errorf("query notification stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stats[domain.Status(status)] = count
	}
	return stats, rows.Err()
}
