package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenJSON_RoundTrip(t *testing.T) {
	key := RandBytes(32)

	type payload struct {
		IV     []byte `json:"iv"`
		AESKey []byte `json:"aesKey"`
	}
	in := payload{IV: RandBytes(16), AESKey: RandBytes(32)}

	ciphertext, nonce, err := SealJSON(in, key)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.NotEmpty(t, nonce)

	var out payload
	require.NoError(t, OpenJSON(ciphertext, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestOpenJSON_WrongKeyFails(t *testing.T) {
	key := RandBytes(32)

	ciphertext, nonce, err := SealJSON(map[string]string{"a": "b"}, key)
	require.NoError(t, err)

	var out map[string]string
	err = OpenJSON(ciphertext, nonce, RandBytes(32), &out)
	require.Error(t, err)
}

func TestDeriveSharedSecret(t *testing.T) {
	token := RandBytes(32)
	salt := RandBytes(16)

	s1 := DeriveSharedSecret(token, salt)
	s2 := DeriveSharedSecret(token, salt)

	require.Len(t, s1, SharedSecretSize)
	assert.Equal(t, s1, s2)

	other := DeriveSharedSecret(token, RandBytes(16))
	assert.NotEqual(t, s1, other)
}
