package incoming

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/authz"
	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
	"github.com/homebase-id/odin-core-sub020/internal/notifications"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// PartKind names the part categories a session accepts after start.
type PartKind int

const (
	PartKindPayload   PartKind = 0
	PartKindThumbnail PartKind = 1
)

// Part is one uploaded part of a transfer session.
type Part struct {
	Kind        PartKind
	PayloadKey  string
	PixelWidth  int
	PixelHeight int
	Data        []byte
}

// DeleteRequest asks this node to delete a file the sender previously
// delivered.
type DeleteRequest struct {
	TargetDrive     drive.TargetDrive
	FileSystemType  drive.FileSystemType
	GlobalTransitID uuid.UUID
}

// Coordinator runs the receiving side of a transfer: sessions, the
// direct-write decision, and handoff to the inbox queue.
type Coordinator struct {
	db       *sql.DB
	sessions *SessionStore
	temp     *drive.TempStore
	payloads drive.PayloadStore
	store    *drive.Store
	queue    *Queue
	notifier notifications.Dispatcher
	log      logging.Logger
}

func NewCoordinator(db *sql.DB, sessions *SessionStore, temp *drive.TempStore,
	payloads drive.PayloadStore, queue *Queue, notifier notifications.Dispatcher,
	log logging.Logger) *Coordinator {

	return &Coordinator{
		db:       db,
		sessions: sessions,
		temp:     temp,
		payloads: payloads,
		store:    drive.NewStore(db, temp, payloads),
		queue:    queue,
		notifier: notifier,
		log:      log,
	}
}

// BeginSession validates the instruction set, allocates a temp file on the
// resolved drive, and registers the session.
func (c *Coordinator) BeginSession(ctx context.Context, authCtx *authz.Context,
	instructionSet *peer.TransferInstructionSet) (uuid.UUID, error) {

	if err := instructionSet.AssertIsValid(); err != nil {
		return uuid.Nil, err
	}

	driveID, err := authCtx.ResolveDriveID(instructionSet.TargetDrive)
	if err != nil {
		return uuid.Nil, err
	}

	tempFile := c.temp.Allocate(driveID)
	raw, err := json.Marshal(instructionSet)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := c.temp.WritePart(tempFile, PartInstructionSet, raw); err != nil {
		return uuid.Nil, faults.Transient("failed to persist instruction set", err)
	}

	sess := &Session{
		ID:             uuid.New(),
		File:           tempFile,
		InstructionSet: instructionSet,
		Collector:      NewPayloadCollector(instructionSet.Manifest),
	}
	c.sessions.Put(sess)

	c.log.Debug(ctx, "transfer session started",
		"session", sess.ID.String(), "drive", driveID.String(), "caller", authCtx.Caller.String())
	return sess.ID, nil
}

// AcceptPart appends the part's bytes to the session temp file and records
// it against the manifest. Bytes written for the part are reported back so
// the sender can verify.
func (c *Coordinator) AcceptPart(ctx context.Context, sessionID uuid.UUID, part Part) (int64, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return 0, err
	}

	var tag string
	switch part.Kind {
	case PartKindPayload:
		tag = part.PayloadKey
		err = sess.Collector.AcceptPayload(part.PayloadKey)
	case PartKindThumbnail:
		thumb := drive.ThumbnailDescriptor{PixelWidth: part.PixelWidth, PixelHeight: part.PixelHeight}
		tag = thumb.TransitKey(part.PayloadKey)
		err = sess.Collector.AcceptThumbnail(tag)
	default:
		return 0, faults.Client(faults.CodeCorruptTransfer, "unknown part kind")
	}
	if err != nil {
		return 0, err
	}

	n, err := c.temp.WritePart(sess.File, tag, part.Data)
	if err != nil {
		return 0, faults.Transient("failed to write part", err)
	}
	return n, nil
}

// Finalize closes the session and decides the transfer. Eligible transfers
// are written before the call returns; everything else is queued durably.
// A comment that cannot be written directly is refused outright, never
// queued, because its ACL inheritance cannot be deferred safely.
func (c *Coordinator) Finalize(ctx context.Context, authCtx *authz.Context,
	sessionID uuid.UUID, metadataBytes []byte) (peer.ResponseCode, error) {

	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return peer.ResponseRejected, err
	}
	instructionSet := sess.InstructionSet

	if instructionSet.ContentsProvided.Has(peer.SendPayload) {
		if err := sess.Collector.AssertComplete(); err != nil {
			return peer.ResponseRejected, c.reject(sess, err)
		}
	}

	var metadata drive.FileMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return peer.ResponseRejected, c.reject(sess,
			faults.Wrap(faults.ClassClient, faults.CodeCorruptTransfer, "file metadata does not deserialize", err))
	}
	if _, err := c.temp.WritePart(sess.File, PartMetadata, metadataBytes); err != nil {
		return peer.ResponseRejected, faults.Transient("failed to persist metadata", err)
	}

	if err := authCtx.AssertCanWriteToDrive(sess.File.DriveID); err != nil {
		return peer.ResponseRejected, c.reject(sess, err)
	}

	if c.canDirectWrite(authCtx, sess.File.DriveID, metadata) {
		keyHeader, err := instructionSet.SharedSecretEncryptedKeyHeader.Decrypt(authCtx.SharedSecret())
		if err != nil {
			return peer.ResponseRejected, c.reject(sess,
				faults.Wrap(faults.ClassClient, faults.CodeCorruptTransfer, "key header does not decrypt", err))
		}

		err = dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			writer := NewFileWriter(drive.NewStore(tx, c.temp, c.payloads), drive.NewRepository(tx), c.temp, c.log)
			return writer.HandleFile(ctx, sess.File, authCtx.Caller, instructionSet, keyHeader)
		})
		if err != nil {
			if faults.IsClass(err, faults.ClassTransient) {
				return peer.ResponseRejected, err
			}
			return peer.ResponseRejected, c.reject(sess, err)
		}

		c.sessions.Remove(sess.ID)
		if err := c.temp.Cleanup(sess.File); err != nil {
			c.log.Warn(ctx, "failed to clean up written session", "session", sess.ID.String(), "error", err)
		}
		c.notify(ctx, authCtx, instructionSet)
		return peer.ResponseAcceptedDirectWrite, nil
	}

	if instructionSet.FileSystemType == drive.FileSystemComment {
		return peer.ResponseRejected, c.reject(sess,
			faults.Security(faults.CodeCannotWriteEncryptedComment,
				"encrypted comments cannot be deferred to the inbox"))
	}

	item := &peer.TransferInboxItem{
		Sender:             authCtx.Caller,
		InstructionType:    peer.InstructionSaveFile,
		DriveID:            sess.File.DriveID,
		FileID:             sess.File.FileID,
		GlobalTransitID:    metadata.GlobalTransitID,
		FileSystemType:     instructionSet.FileSystemType,
		TransferFileType:   instructionSet.TransferFileType,
		EncryptedKeyHeader: instructionSet.SharedSecretEncryptedKeyHeader,
		InstructionSet:     instructionSet,
	}
	if err := c.queue.Add(ctx, item); err != nil {
		return peer.ResponseRejected, faults.Transient("failed to enqueue transfer", err)
	}

	c.sessions.Remove(sess.ID)
	c.notify(ctx, authCtx, instructionSet)
	return peer.ResponseAcceptedIntoInbox, nil
}

// AcceptDeleteRequest handles a sender's request to delete a file it
// previously delivered. Comments are verified and deleted synchronously;
// standard files always go through the inbox.
func (c *Coordinator) AcceptDeleteRequest(ctx context.Context, authCtx *authz.Context,
	req DeleteRequest) (peer.ResponseCode, error) {

	driveID, err := authCtx.ResolveDriveID(req.TargetDrive)
	if err != nil {
		return peer.ResponseRejected, err
	}
	if err := authCtx.AssertCanWriteToDrive(driveID); err != nil {
		return peer.ResponseRejected, err
	}

	if req.FileSystemType == drive.FileSystemComment {
		existing, err := c.store.GetByGlobalTransitID(ctx, driveID, req.GlobalTransitID)
		if err != nil {
			return peer.ResponseRejected, err
		}
		if existing == nil {
			return peer.ResponseRejected, faults.Client(faults.CodeFileNotFound,
				"no file with this global transit id")
		}
		if !existing.FileMetadata.Sender.Equal(authCtx.Caller) {
			return peer.ResponseRejected, faults.Security(faults.CodeNotOriginalAuthor,
				"only the comment's author may delete it")
		}

		err = dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			store := drive.NewStore(tx, c.temp, c.payloads)
			return store.SoftDelete(ctx, drive.InternalFileID{DriveID: existing.DriveID, FileID: existing.FileID})
		})
		if err != nil {
			return peer.ResponseRejected, err
		}
		return peer.ResponseAcceptedDirectWrite, nil
	}

	item := &peer.TransferInboxItem{
		Sender:          authCtx.Caller,
		InstructionType: peer.InstructionDeleteLinkedFile,
		DriveID:         driveID,
		FileID:          uuid.New(),
		GlobalTransitID: req.GlobalTransitID,
		FileSystemType:  req.FileSystemType,
	}
	if err := c.queue.Add(ctx, item); err != nil {
		return peer.ResponseRejected, faults.Transient("failed to enqueue delete request", err)
	}
	return peer.ResponseAcceptedIntoInbox, nil
}

// canDirectWrite applies the eligibility rule: only peer-certificate callers
// qualify, and an encrypted file additionally requires the caller's context
// to hold the drive storage key.
func (c *Coordinator) canDirectWrite(authCtx *authz.Context, driveID uuid.UUID, metadata drive.FileMetadata) bool {
	if authCtx.Class != authz.AuthClassPeerCertificate {
		return false
	}
	if !metadata.IsEncrypted {
		return true
	}
	_, ok := authCtx.TryGetDriveStorageKey(driveID)
	return ok
}

// reject decides the transfer against the sender: the session is dropped and
// its temp parts reclaimed.
func (c *Coordinator) reject(sess *Session, err error) error {
	c.sessions.Remove(sess.ID)
	if cleanupErr := c.temp.Cleanup(sess.File); cleanupErr != nil {
		c.log.Warn(context.Background(), "failed to clean up rejected session",
			"session", sess.ID.String(), "error", cleanupErr)
	}
	return err
}

// notify enqueues the sender-requested app notification. Failures are
// logged and never affect the transfer outcome.
func (c *Coordinator) notify(ctx context.Context, authCtx *authz.Context, instructionSet *peer.TransferInstructionSet) {
	if instructionSet.AppNotificationOptions == nil {
		return
	}
	if err := c.notifier.Enqueue(ctx, authCtx.Caller, *instructionSet.AppNotificationOptions); err != nil {
		c.log.Warn(ctx, "failed to enqueue app notification",
			"caller", authCtx.Caller.String(), "error", err)
	}
}
