package oauth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestCipher_SealOpen(t *testing.T) {
	c, err := NewCipher(testSecret)
	require.NoError(t, err)

	first, err := c.Seal("refresh-abc")
	require.NoError(t, err)
	second, err := c.Seal("refresh-abc")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "nonce must differ per seal")
	assert.NotContains(t, first, "refresh-abc")

	plain, err := c.Open(first)
	require.NoError(t, err)
	assert.Equal(t, "refresh-abc", plain)
}

func TestCipher_RejectsShortSecret(t *testing.T) {
	_, err := NewCipher("short")
	assert.Error(t, err)
}

func TestCipher_OpenFailures(t *testing.T) {
	c, err := NewCipher(testSecret)
	require.NoError(t, err)
	other, err := NewCipher(strings.Repeat("z", 32))
	require.NoError(t, err)

	sealed, err := c.Seal("refresh-abc")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	require.NoError(t, err)

	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-1] ^= 0x01

	versioned := append([]byte(nil), raw...)
	versioned[0] = 0x02

	tests := []struct {
		name   string
		cipher *Cipher
		input  string
	}{
		{name: "wrong key", cipher: other, input: sealed},
		{name: "tampered", cipher: c, input: base64.RawURLEncoding.EncodeToString(flipped)},
		{name: "unknown version", cipher: c, input: base64.RawURLEncoding.EncodeToString(versioned)},
		{name: "not base64", cipher: c, input: "!!!"},
		{name: "too short", cipher: c, input: base64.RawURLEncoding.EncodeToString(raw[:10])},
		{name: "empty", cipher: c, input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Open(tt.input)
			assert.ErrorIs(t, err, ErrInvalidSealedToken)
		})
	}
}
