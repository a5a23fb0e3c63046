package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/httpclient"
	"github.com/lupppig/notifyflow/internal/logging"
)

const (
	PhoneNumberParam = "phoneNumber"
	DeviceTokenParam = "deviceToken"
	TitleParam       = "title"
	DefaultPushTitle = "Notification"
)

var ErrGatewayStatus = errors.New("gateway returned non-success status")

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type pushRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// GatewaySender posts SMS or push messages to an HTTP delivery gateway.
type GatewaySender struct {
	client  *httpclient.Client
	url     string
	channel domain.Channel
}

func NewSMSGateway(client *httpclient.Client, url string) *GatewaySender {
	return &GatewaySender{client: client, url: url, channel: domain.ChannelSMS}
}

func NewPushGateway(client *httpclient.Client, url string) *GatewaySender {
	return &GatewaySender{client: client, url: url, channel: domain.ChannelPush}
}

func (s *GatewaySender) Send(ctx context.Context, n *domain.Notification, content string) error {
	body, err := s.request(n, content)
	if err != nil {
		return err
	}

	resp, err := s.client.PostJSON(ctx, s.url, body)
	if err != nil {
		return fmt.Errorf("%s gateway: %w", s.channel.Subject(), err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s gateway answered %d", ErrGatewayStatus, s.channel.Subject(), resp.StatusCode)
	}

	logging.FromContext(ctx).Debug("gateway accepted message", slog.Int("status_code", resp.StatusCode))
	return nil
}

func (s *GatewaySender) request(n *domain.Notification, content string) (any, error) {
	switch s.channel {
	case domain.ChannelSMS:
		to, err := destination(n, PhoneNumberParam)
		if err != nil {
			return nil, err
		}
		return smsRequest{To: to, Body: content}, nil
	case domain.ChannelPush:
		to, err := destination(n, DeviceTokenParam)
		if err != nil {
			return nil, err
		}
		title, err := stringParam(n, TitleParam, DefaultPushTitle)
		if err != nil {
			return nil, err
		}
		return pushRequest{To: to, Title: title, Body: content}, nil
	}
	return nil, fmt.Errorf("gateway sender does not support channel %s", s.channel)
}
