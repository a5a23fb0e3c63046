package sender

import (
	"context"
	"log/slog"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/logging"
)

// LogSender writes the delivery to the log and reports success. It stands in
// for a channel whose provider is not configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, n *domain.Notification, content string) error {
	logging.FromContext(ctx).Info("delivery logged",
		slog.String("template", n.TemplateName),
		slog.Int("content_length", len(content)),
	)
	return nil
}
