package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{"EMAIL", ChannelEmail, false},
		{"sms", ChannelSMS, false},
		{" Push ", ChannelPush, false},
		{"webhook", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseChannel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestChannelsAreValid(t *testing.T) {
	for _, c := range Channels() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Channel("FAX").Valid())
	assert.Equal(t, "email", ChannelEmail.Subject())
}

func TestNewNotificationStartsPending(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NewNotification("ntf_1", ChannelSMS, "otp", json.RawMessage(`{"phoneNumber":"+1"}`), now)

	assert.Equal(t, StatusPending, n.Status)
	assert.Zero(t, n.Attempts)
	assert.Equal(t, now, n.CreatedAt)
	assert.Equal(t, now, n.UpdatedAt)
	assert.False(t, n.Status.Terminal())
}

func TestParams(t *testing.T) {
	n := &Notification{Parameters: json.RawMessage(`{"email":"a@b.com","count":2}`)}
	params, err := n.Params()
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", params["email"])
	assert.Equal(t, float64(2), params["count"])

	empty := &Notification{}
	params, err = empty.Params()
	require.NoError(t, err)
	assert.Empty(t, params)

	null := &Notification{Parameters: json.RawMessage(`null`)}
	params, err = null.Params()
	require.NoError(t, err)
	assert.NotNil(t, params)

	bad := &Notification{Parameters: json.RawMessage(`["not","an","object"]`)}
	_, err = bad.Params()
	assert.Error(t, err)
}
