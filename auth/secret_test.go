package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	testCases := []struct {
		desc   string
		secret string
	}{
		{desc: "digits", secret: "12345678901234567890123456789012"},
		{desc: "sentence", secret: "this must be 32 characters long."},
		// "!" never shows up in the PHC encoding
		{desc: "short", secret: "!"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			h1, err := HashSecret([]byte(tC.secret))
			require.NoError(t, err)
			h2, err := HashSecret([]byte(tC.secret))
			require.NoError(t, err)

			assert.Equal(t, h1, h2, "both peers must derive the same room key")
			assert.True(t, strings.HasPrefix(h1, "$argon2i$v=19$m=4096,t=3,p=1$"), h1)
			assert.NotContains(t, h1, tC.secret)
			assert.NotContains(t, h1, " ")
			assert.NotContains(t, h1, "\n")
		})
	}
}

func TestHashSecretDistinct(t *testing.T) {
	h1, err := HashSecret([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)
	h2, err := HashSecret([]byte("12345678901234567890123456789013"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashSecretEmpty(t *testing.T) {
	_, err := HashSecret(nil)
	assert.ErrorIs(t, err, ErrHash)
}

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, s1, SecretSize)
	for _, c := range s1 {
		assert.True(t, c >= '0' && c <= '9', "unexpected character %q", c)
	}

	s2, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
