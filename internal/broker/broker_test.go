package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lupppig/notifyflow/internal/domain"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "notifications.deliver.email", DeliverySubject(domain.ChannelEmail))
	assert.Equal(t, "notifications.outcomes.sms", OutcomeSubject(domain.ChannelSMS))
	assert.Equal(t, "notifications.outcomes.push", OutcomeFilter(domain.ChannelPush))
	assert.Equal(t, "notifications.outcomes.*", OutcomeFilter(""))
}
