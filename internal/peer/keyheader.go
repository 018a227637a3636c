package peer

import (
	"github.com/homebase-id/odin-core-sub020/internal/cryptox"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
)

// EncryptedKeyHeader is a file's key header sealed under the connection
// shared secret. It travels on the wire and sits in the inbox until the
// processor re-resolves the secret and opens it.
type EncryptedKeyHeader struct {
	IV              []byte `json:"iv"`
	EncryptedAESKey []byte `json:"encryptedAesKey"`
}

// IsEmpty reports whether no key material is present.
func (h EncryptedKeyHeader) IsEmpty() bool {
	return len(h.IV) == 0 && len(h.EncryptedAESKey) == 0
}

// SealKeyHeader encrypts a key header under the shared secret.
func SealKeyHeader(kh drive.KeyHeader, sharedSecret []byte) (EncryptedKeyHeader, error) {
	ciphertext, nonce, err := cryptox.SealJSON(kh, sharedSecret)
	if err != nil {
		return EncryptedKeyHeader{}, err
	}
	return EncryptedKeyHeader{IV: nonce, EncryptedAESKey: ciphertext}, nil
}

// Decrypt opens the sealed key header with the shared secret.
func (h EncryptedKeyHeader) Decrypt(sharedSecret []byte) (drive.KeyHeader, error) {
	var kh drive.KeyHeader
	if err := cryptox.OpenJSON(h.EncryptedAESKey, h.IV, sharedSecret, &kh); err != nil {
		return drive.KeyHeader{}, err
	}
	return kh, nil
}
