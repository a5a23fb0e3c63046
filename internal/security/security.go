package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	KeyPrefix = "nf_"
	Alphabet  = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateKey creates a random admin API key using NanoID with a prefix.
func GenerateKey() (string, error) {
	id, err := gonanoid.Generate(Alphabet, 32)
	if err != nil {
		return "", err
	}
	return KeyPrefix + id, nil
}

// HashKey returns a SHA-256 hash of the provided key.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}

// Matches reports whether key hashes to hash, in constant time.
func Matches(key, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashKey(key)), []byte(hash)) == 1
}

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Verifier checks presented keys against the hash of one configured key. A
// Verifier built from an empty key accepts everything.
type Verifier struct {
	hash string
}

func NewVerifier(key string) *Verifier {
	v := &Verifier{}
	if key != "" {
		v.hash = HashKey(key)
	}
	return v
}

func (v *Verifier) Enabled() bool {
	return v.hash != ""
}

func (v *Verifier) Verify(key string) error {
	if !v.Enabled() {
		return nil
	}
	if key == "" {
		return ErrMissingKey
	}
	if !strings.HasPrefix(key, KeyPrefix) || !Matches(key, v.hash) {
		return ErrInvalidKey
	}
	return nil
}
