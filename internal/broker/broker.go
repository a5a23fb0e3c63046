package broker

import (
	"context"

	"github.com/lupppig/notifyflow/internal/domain"
)

const (
	SubjectPrefix  = "notifications"
	DeliverPrefix  = SubjectPrefix + ".deliver"
	OutcomesPrefix = SubjectPrefix + ".outcomes"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// DeliverySubject is the queue subject for notifications on channel.
func DeliverySubject(channel domain.Channel) string {
	return DeliverPrefix + "." + channel.Subject()
}

// OutcomeSubject carries delivery outcomes for channel.
func OutcomeSubject(channel domain.Channel) string {
	return OutcomesPrefix + "." + channel.Subject()
}

// OutcomeFilter matches outcomes for channel, or for every channel when
// channel is empty.
func OutcomeFilter(channel domain.Channel) string {
	if channel == "" {
		return OutcomesPrefix + ".*"
	}
	return OutcomeSubject(channel)
}
