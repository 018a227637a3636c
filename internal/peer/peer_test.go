package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebase-id/odin-core-sub020/internal/cryptox"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
)

func TestKeyHeader_SealDecryptRoundTrip(t *testing.T) {
	secret := cryptox.RandBytes(32)
	kh := drive.KeyHeader{IV: cryptox.RandBytes(16), AESKey: cryptox.RandBytes(32)}

	sealed, err := SealKeyHeader(kh, secret)
	require.NoError(t, err)
	require.False(t, sealed.IsEmpty())

	got, err := sealed.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, kh, got)
}

func TestKeyHeader_DecryptWrongSecret(t *testing.T) {
	sealed, err := SealKeyHeader(drive.KeyHeader{
		IV: cryptox.RandBytes(16), AESKey: cryptox.RandBytes(32),
	}, cryptox.RandBytes(32))
	require.NoError(t, err)

	_, err = sealed.Decrypt(cryptox.RandBytes(32))
	require.Error(t, err)
}

func TestInstructionSet_AssertIsValid(t *testing.T) {
	valid := &TransferInstructionSet{
		SharedSecretEncryptedKeyHeader: EncryptedKeyHeader{
			IV: cryptox.RandBytes(12), EncryptedAESKey: cryptox.RandBytes(48),
		},
	}
	require.NoError(t, valid.AssertIsValid())

	empty := &TransferInstructionSet{}
	err := empty.AssertIsValid()
	require.Error(t, err)
	assert.Equal(t, faults.CodeCorruptTransfer, faults.CodeOf(err))
}

func TestSendContents_Has(t *testing.T) {
	set := SendHeader | SendPayload
	assert.True(t, set.Has(SendHeader))
	assert.True(t, set.Has(SendPayload))
	assert.False(t, set.Has(SendThumbnails))
}

func TestTransferFileType_IsFeed(t *testing.T) {
	assert.False(t, TransferNormal.IsFeed())
	assert.True(t, TransferEncryptedFeedFile.IsFeed())
	assert.True(t, TransferEncryptedFeedFileViaRelay.IsFeed())
}
