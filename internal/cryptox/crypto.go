// Package cryptox wraps the crypto operations the transfer pipeline needs:
// sealing and opening JSON values under a shared secret (AES-GCM) and
// deriving a connection's shared secret from its access token.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/argon2"
)

// SharedSecretSize is the AES-256 key length used for shared secrets.
const SharedSecretSize = 32

// DeriveSharedSecret stretches a connection access token into the 32-byte
// shared secret both peers use to seal key headers.
func DeriveSharedSecret(accessToken, salt []byte) []byte {
	return argon2.IDKey(accessToken, salt, 1, 64*1024, 4, SharedSecretSize)
}

// SealJSON serializes v to JSON and encrypts it with AES-GCM under key.
// A fresh random nonce is generated per call and returned alongside the
// ciphertext. The key must be 16, 24, or 32 bytes.
func SealJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = RandBytes(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// OpenJSON decrypts ciphertext produced by SealJSON and unmarshals the
// recovered JSON into v. The same key and nonce must be supplied.
func OpenJSON(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// RandBytes returns n cryptographically random bytes.
func RandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
