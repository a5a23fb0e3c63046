package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/store"
)

func newNotification(id string) *domain.Notification {
	return domain.NewNotification(id, domain.ChannelEmail, "welcome", json.RawMessage(`{}`), time.Now())
}

func TestSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()

	n := newNotification("ntf_1")
	require.NoError(t, s.Save(ctx, n))

	n.Status = domain.StatusFailed
	n.Attempts = 1
	require.NoError(t, s.Save(ctx, n))

	got, err := s.GetByID(ctx, "ntf_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 2, s.Saves())
}

func TestSaveNeverDecreasesAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()

	n := newNotification("ntf_1")
	n.Status = domain.StatusFailed
	n.Attempts = 3
	require.NoError(t, s.Save(ctx, n))

	stale := newNotification("ntf_1")
	stale.Status = domain.StatusFailed
	stale.Attempts = 1
	require.NoError(t, s.Save(ctx, stale))

	got, err := s.GetByID(ctx, "ntf_1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
}

func TestSaveNeverDowngradesSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()

	n := newNotification("ntf_1")
	n.Status = domain.StatusSuccess
	n.Attempts = 1
	require.NoError(t, s.Save(ctx, n))

	replay := newNotification("ntf_1")
	replay.Status = domain.StatusFailed
	replay.Attempts = 1
	require.NoError(t, s.Save(ctx, replay))

	got, err := s.GetByID(ctx, "ntf_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	_, err := NewNotificationStore().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()

	for i, st := range []domain.Status{domain.StatusFailed, domain.StatusSuccess, domain.StatusFailed, domain.StatusFailed} {
		n := newNotification(string(rune('a' + i)))
		n.Status = st
		n.UpdatedAt = time.Unix(int64(100-i), 0)
		require.NoError(t, s.Save(ctx, n))
	}

	failed, err := s.FindByStatus(ctx, domain.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 3)
	assert.Equal(t, "d", failed[0].ID, "oldest update first")

	limited, err := s.FindByStatus(ctx, domain.StatusFailed, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFindRetryable(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()

	seedRow := func(id string, st domain.Status, attempts int, updated int64) {
		n := newNotification(id)
		n.Status = st
		n.Attempts = attempts
		n.UpdatedAt = time.Unix(updated, 0)
		require.NoError(t, s.Save(ctx, n))
	}
	seedRow("exhausted", domain.StatusFailed, 3, 1)
	seedRow("older", domain.StatusFailed, 1, 2)
	seedRow("newer", domain.StatusFailed, 2, 3)
	seedRow("done", domain.StatusSuccess, 1, 4)

	retryable, err := s.FindRetryable(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 2)
	assert.Equal(t, "older", retryable[0].ID)
	assert.Equal(t, "newer", retryable[1].ID)

	limited, err := s.FindRetryable(ctx, 3, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "older", limited[0].ID)
}

func TestTemplateStore(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore()
	s.Put("welcome", "Hello {{.name}}")

	tpl, err := s.FindByName(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{.name}}", tpl.Content)

	_, err = s.FindByName(ctx, "otp")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 2, s.Lookups())
}

func TestStatsStore(t *testing.T) {
	ctx := context.Background()
	s := NewStatsStore()
	now := time.Now()

	require.NoError(t, s.IncrementStats(ctx, domain.ChannelSMS, domain.StatusFailed, now))
	require.NoError(t, s.IncrementStats(ctx, domain.ChannelSMS, domain.StatusFailed, now.Add(-2*time.Hour)))
	require.NoError(t, s.IncrementStats(ctx, domain.ChannelSMS, domain.StatusSuccess, now))
	require.NoError(t, s.IncrementStats(ctx, domain.ChannelEmail, domain.StatusSuccess, now))

	stats, err := s.GetStats(ctx, domain.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[domain.StatusFailed])
	assert.Equal(t, int64(1), stats[domain.StatusSuccess])
}
