package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrz1836/postmark"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/logging"
)

const (
	EmailParam     = "email"
	SubjectParam   = "subject"
	DefaultSubject = "Notification from our service"
)

var ErrEmailRejected = errors.New("postmark rejected email")

// EmailClient is the part of the Postmark client used for delivery.
type EmailClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkSender struct {
	client         EmailClient
	from           string
	defaultSubject string
}

func NewPostmarkClient(serverToken, accountToken string) *postmark.Client {
	return postmark.NewClient(serverToken, accountToken)
}

func NewPostmarkSender(client EmailClient, from, defaultSubject string) *PostmarkSender {
	if defaultSubject == "" {
		defaultSubject = DefaultSubject
	}
	return &PostmarkSender{
		client:         client,
		from:           from,
		defaultSubject: defaultSubject,
	}
}

func (s *PostmarkSender) Send(ctx context.Context, n *domain.Notification, content string) error {
	to, err := destination(n, EmailParam)
	if err != nil {
		return err
	}
	subject, err := stringParam(n, SubjectParam, s.defaultSubject)
	if err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		Tag:      n.TemplateName,
		HTMLBody: content,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: %d - %s", ErrEmailRejected, resp.ErrorCode, resp.Message)
	}

	logging.FromContext(ctx).Debug("email accepted", slog.String("message_id", resp.MessageID))
	return nil
}
