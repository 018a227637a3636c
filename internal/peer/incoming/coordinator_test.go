package incoming

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebase-id/odin-core-sub020/internal/cryptox"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

func TestBeginSession_MissingKeyHeader(t *testing.T) {
	env := newTestEnv(t)
	authCtx := env.peerContext(env.drv, senderAlice, nil)

	set := env.instructionSet(peer.EncryptedKeyHeader{}, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})

	_, err := env.coord.BeginSession(context.Background(), authCtx, set)
	require.Error(t, err)
	assert.Equal(t, faults.CodeCorruptTransfer, faults.CodeOf(err))
}

func TestBeginSession_UnresolvableDrive(t *testing.T) {
	env := newTestEnv(t)
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})
	set.TargetDrive = drive.TargetDrive{Alias: uuid.New(), Type: uuid.New()}

	_, err := env.coord.BeginSession(context.Background(), authCtx, set)
	require.Error(t, err)
	assert.Equal(t, faults.CodeInvalidDrive, faults.CodeOf(err))
}

func TestAcceptPart_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.coord.AcceptPart(context.Background(), uuid.New(),
		Part{Kind: PartKindPayload, PayloadKey: "media", Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, faults.CodeUnknownSession, faults.CodeOf(err))
}

// A mutual-TLS caller sending an unencrypted file with all declared parts
// gets the file committed before the call returns.
func TestFinalize_DirectWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	manifest := peer.UploadManifest{PayloadDescriptors: []drive.PayloadDescriptor{{Key: "media"}}}
	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader|peer.SendPayload, manifest)

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	n, err := env.coord.AcceptPart(ctx, sessionID,
		Part{Kind: PartKindPayload, PayloadKey: "media", Data: []byte("payload-bytes")})
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload-bytes")), n)

	gtid := uuid.New()
	metadata := marshalMetadata(t, drive.FileMetadata{
		GlobalTransitID: gtid,
		Payloads:        []drive.PayloadDescriptor{{Key: "media"}},
	})

	code, err := env.coord.Finalize(ctx, authCtx, sessionID, metadata)
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedDirectWrite, code)

	header, err := env.store.GetByGlobalTransitID(ctx, env.drv.ID, gtid)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, senderAlice, header.FileMetadata.Sender)
	assert.Equal(t, 0, env.queueSize(t, env.drv.ID))

	// the session is gone once the transfer is decided
	_, err = env.coord.Finalize(ctx, authCtx, sessionID, metadata)
	require.Error(t, err)
	assert.Equal(t, faults.CodeUnknownSession, faults.CodeOf(err))
}

// A bearer-token caller is never direct-write eligible: the transfer is
// queued and applied by the next drain.
func TestFinalize_QueuedThenProcessed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.appContext(env.drv, senderAlice)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	gtid := uuid.New()
	code, err := env.coord.Finalize(ctx, authCtx, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: gtid}))
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedIntoInbox, code)

	// not visible yet
	header, err := env.store.GetByGlobalTransitID(ctx, env.drv.ID, gtid)
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Equal(t, 1, env.queueSize(t, env.drv.ID))

	status, err := env.newProcessor(false).ProcessInbox(ctx, env.drv.Target, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalItems)

	header, err = env.store.GetByGlobalTransitID(ctx, env.drv.ID, gtid)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, senderAlice, header.FileMetadata.Sender)
}

func TestFinalize_EncryptedWithoutStorageKeyQueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	code, err := env.coord.Finalize(ctx, authCtx, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: uuid.New(), IsEncrypted: true}))
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedIntoInbox, code)
	assert.Equal(t, 1, env.queueSize(t, env.drv.ID))
}

func TestFinalize_EncryptedWithStorageKeyDirectWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, cryptox.RandBytes(32))
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	gtid := uuid.New()
	code, err := env.coord.Finalize(ctx, authCtx, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: gtid, IsEncrypted: true}))
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedDirectWrite, code)
	assert.Equal(t, 0, env.queueSize(t, env.drv.ID))
}

// An encrypted comment that cannot be written directly is refused outright.
// Nothing may land in the queue.
func TestFinalize_EncryptedCommentNeverQueued(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	set := env.instructionSet(sealed, env.drv, drive.FileSystemComment,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	before := env.queueSize(t, env.drv.ID)
	code, err := env.coord.Finalize(ctx, authCtx, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: uuid.New(), IsEncrypted: true}))
	require.Error(t, err)
	assert.Equal(t, peer.ResponseRejected, code)
	assert.Equal(t, faults.CodeCannotWriteEncryptedComment, faults.CodeOf(err))
	assert.Equal(t, before, env.queueSize(t, env.drv.ID))
	assert.Equal(t, 0, env.sessions.Len())
}

func TestFinalize_IncompleteUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	manifest := peer.UploadManifest{PayloadDescriptors: []drive.PayloadDescriptor{{Key: "media"}}}
	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader|peer.SendPayload, manifest)

	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	code, err := env.coord.Finalize(ctx, authCtx, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: uuid.New()}))
	require.Error(t, err)
	assert.Equal(t, peer.ResponseRejected, code)
	assert.Equal(t, faults.CodeIncompleteUpload, faults.CodeOf(err))
	assert.Equal(t, 0, env.queueSize(t, env.drv.ID))
	assert.Equal(t, 0, env.fileCount(t, env.drv.ID))
}

func TestFinalize_NoWriteGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, sealed := env.sealedKeyHeader(t, senderAlice)

	// read-only grant
	authCtx := env.peerContext(env.drv, senderAlice, nil)
	set := env.instructionSet(sealed, env.drv, drive.FileSystemStandard,
		peer.TransferNormal, peer.SendHeader, peer.UploadManifest{})
	sessionID, err := env.coord.BeginSession(ctx, authCtx, set)
	require.NoError(t, err)

	readOnly := authzReadOnly(env, senderAlice)
	code, err := env.coord.Finalize(ctx, readOnly, sessionID,
		marshalMetadata(t, drive.FileMetadata{GlobalTransitID: uuid.New()}))
	require.Error(t, err)
	assert.Equal(t, peer.ResponseRejected, code)
	assert.Equal(t, faults.CodeAccessDenied, faults.CodeOf(err))
}

func TestAcceptDeleteRequest_StandardQueued(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	authCtx := env.peerContext(env.drv, senderAlice, nil)

	// deliver a file first
	gtid := uuid.New()
	tempFile := env.temp.Allocate(env.drv.ID)
	_, err := env.store.CommitNewFile(ctx, tempFile,
		drive.KeyHeader{IV: cryptox.RandBytes(16), AESKey: cryptox.RandBytes(32)},
		drive.FileMetadata{GlobalTransitID: gtid, Sender: senderAlice}, drive.ServerMetadata{}, true)
	require.NoError(t, err)

	code, err := env.coord.AcceptDeleteRequest(ctx, authCtx, DeleteRequest{
		TargetDrive:     env.drv.Target,
		FileSystemType:  drive.FileSystemStandard,
		GlobalTransitID: gtid,
	})
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedIntoInbox, code)
	assert.Equal(t, 1, env.queueSize(t, env.drv.ID))

	_, err = env.newProcessor(false).ProcessInbox(ctx, env.drv.Target, 10)
	require.NoError(t, err)

	header, err := env.store.GetByGlobalTransitID(ctx, env.drv.ID, gtid)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, drive.FileDeleted, header.FileState)
}

// Only the original author of a comment may delete it synchronously.
func TestAcceptDeleteRequest_CommentAuthorCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gtid := uuid.New()
	tempFile := env.temp.Allocate(env.drv.ID)
	_, err := env.store.CommitNewFile(ctx, tempFile,
		drive.KeyHeader{IV: cryptox.RandBytes(16), AESKey: cryptox.RandBytes(32)},
		drive.FileMetadata{GlobalTransitID: gtid, Sender: senderAlice}, drive.ServerMetadata{}, true)
	require.NoError(t, err)

	req := DeleteRequest{
		TargetDrive:     env.drv.Target,
		FileSystemType:  drive.FileSystemComment,
		GlobalTransitID: gtid,
	}

	code, err := env.coord.AcceptDeleteRequest(ctx, env.peerContext(env.drv, senderBob, nil), req)
	require.Error(t, err)
	assert.Equal(t, peer.ResponseRejected, code)
	assert.Equal(t, faults.CodeNotOriginalAuthor, faults.CodeOf(err))

	code, err = env.coord.AcceptDeleteRequest(ctx, env.peerContext(env.drv, senderAlice, nil), req)
	require.NoError(t, err)
	assert.Equal(t, peer.ResponseAcceptedDirectWrite, code)

	header, err := env.store.GetByGlobalTransitID(ctx, env.drv.ID, gtid)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, drive.FileDeleted, header.FileState)
}

func TestAcceptDeleteRequest_CommentNotFound(t *testing.T) {
	env := newTestEnv(t)

	code, err := env.coord.AcceptDeleteRequest(context.Background(),
		env.peerContext(env.drv, senderAlice, nil), DeleteRequest{
			TargetDrive:     env.drv.Target,
			FileSystemType:  drive.FileSystemComment,
			GlobalTransitID: uuid.New(),
		})
	require.Error(t, err)
	assert.Equal(t, peer.ResponseRejected, code)
	assert.Equal(t, faults.CodeFileNotFound, faults.CodeOf(err))
}
