package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// Channels returns every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Subject is the lowercase token used in queue subjects and metric labels.
func (c Channel) Subject() string {
	return strings.ToLower(string(c))
}

// ParseChannel accepts any casing of a supported channel name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported channel %q", s)
	}
	return c, nil
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusSuccess, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unsupported status %q", s)
}

// Notification is one delivery unit: a single channel for a single request.
// It doubles as the queue message body.
type Notification struct {
	ID           string          `json:"id" db:"id"`
	Channel      Channel         `json:"channel" db:"channel"`
	TemplateName string          `json:"template_name" db:"template_name"`
	Parameters   json.RawMessage `json:"parameters" db:"parameters"`
	Status       Status          `json:"status" db:"status"`
	Attempts     int             `json:"attempts" db:"attempts"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// NewNotification builds a PENDING notification with zero attempts.
func NewNotification(id string, channel Channel, templateName string, params json.RawMessage, now time.Time) *Notification {
	return &Notification{
		ID:           id,
		Channel:      channel,
		TemplateName: templateName,
		Parameters:   params,
		Status:       StatusPending,
		Attempts:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Params decodes the parameter blob into a map. An empty or null blob
// yields an empty map.
func (n *Notification) Params() (map[string]any, error) {
	params := make(map[string]any)
	if len(n.Parameters) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(n.Parameters, &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = make(map[string]any)
	}
	return params, nil
}

type Template struct {
	Name      string    `json:"name" db:"name"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
