package ids

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	NotificationPrefix = "ntf_"
	Alphabet           = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Length             = 21
)

// NewNotificationID returns a random, URL-safe notification identity.
func NewNotificationID() (string, error) {
	id, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", err
	}
	return NotificationPrefix + id, nil
}
