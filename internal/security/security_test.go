package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, KeyPrefix))
	assert.Len(t, a, len(KeyPrefix)+32)
	assert.NotEqual(t, a, b)
}

func TestHashAndMatch(t *testing.T) {
	hash := HashKey("nf_secret")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashKey("nf_secret"))
	assert.True(t, Matches("nf_secret", hash))
	assert.False(t, Matches("nf_other", hash))
	assert.False(t, Matches("", hash))
}

func TestVerifier(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	v := NewVerifier(key)

	assert.True(t, v.Enabled())
	assert.NoError(t, v.Verify(key))
	assert.ErrorIs(t, v.Verify(""), ErrMissingKey)
	assert.ErrorIs(t, v.Verify("nf_wrong"), ErrInvalidKey)
	assert.ErrorIs(t, v.Verify(strings.TrimPrefix(key, KeyPrefix)), ErrInvalidKey)
}

func TestVerifierDisabled(t *testing.T) {
	v := NewVerifier("")

	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(""))
	assert.NoError(t, v.Verify("anything"))
}
