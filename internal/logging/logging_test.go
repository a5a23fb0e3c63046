package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestMultiHandlerFansOut(t *testing.T) {
	var text, js bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "test")

	logger.Info("info line")
	logger.Warn("warn line")

	assert.Contains(t, text.String(), "info line")
	assert.Contains(t, text.String(), "warn line")
	assert.NotContains(t, js.String(), "info line")
	assert.Contains(t, js.String(), `"msg":"warn line"`)
	assert.Contains(t, js.String(), `"component":"test"`)
}

func TestFromContextCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithNotification(context.Background(), "ntf_1", "EMAIL")
	ctx = WithWorker(ctx, 3)
	FromContext(ctx).Info("hello")

	out := buf.String()
	assert.Contains(t, out, "notification_id=ntf_1")
	assert.Contains(t, out, "channel=EMAIL")
	assert.Contains(t, out, "worker_id=3")
}
