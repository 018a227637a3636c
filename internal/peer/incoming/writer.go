package incoming

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// FileWriter applies a finalized transfer to drive storage. It runs on the
// synchronous path when a transfer qualifies for direct write and on the
// queued path when the inbox processor drains an item. Bind it to a
// transaction-scoped store when the write must commit atomically with other
// rows.
type FileWriter struct {
	store  *drive.Store
	drives *drive.Repository
	temp   *drive.TempStore
	log    logging.Logger
}

func NewFileWriter(store *drive.Store, drives *drive.Repository, temp *drive.TempStore, log logging.Logger) *FileWriter {
	return &FileWriter{store: store, drives: drives, temp: temp, log: log}
}

// HandleFile reads the metadata part written during the session and commits
// the file: new files are inserted, known files (matched by global transit
// id, then client unique id) are overwritten with the version tag carried
// forward.
func (w *FileWriter) HandleFile(ctx context.Context, tempFile drive.InternalFileID, sender identity.ID,
	instructionSet *peer.TransferInstructionSet, keyHeader drive.KeyHeader) error {

	metadata, err := w.readMetadata(tempFile)
	if err != nil {
		return err
	}

	drv, err := w.drives.Get(ctx, tempFile.DriveID)
	if err != nil {
		return err
	}

	acl, err := w.deriveACL(ctx, drv, instructionSet, metadata)
	if err != nil {
		return err
	}

	// The caller on the wire is stamped as the sender. On collaboration
	// drives this records the pushing member, not necessarily the author.
	metadata.Sender = sender

	serverMetadata := drive.ServerMetadata{
		AccessControlList: acl,
		FileSystemType:    instructionSet.FileSystemType,
	}

	ignorePayloads := !instructionSet.ContentsProvided.Has(peer.SendPayload)

	switch instructionSet.TransferFileType {
	case peer.TransferNormal:
		return w.storeNormal(ctx, tempFile, drv, keyHeader, metadata, serverMetadata, ignorePayloads)
	case peer.TransferEncryptedFeedFile, peer.TransferEncryptedFeedFileViaRelay:
		return w.storeFeed(ctx, tempFile, drv, instructionSet.TransferFileType, keyHeader, metadata, serverMetadata)
	default:
		return faults.Client(faults.CodeInvalidInstructionType,
			fmt.Sprintf("unhandled transfer file type %d", instructionSet.TransferFileType))
	}
}

func (w *FileWriter) readMetadata(tempFile drive.InternalFileID) (drive.FileMetadata, error) {
	var metadata drive.FileMetadata
	raw, err := w.temp.ReadPart(tempFile, PartMetadata)
	if err != nil {
		return metadata, faults.Wrap(faults.ClassClient, faults.CodeCorruptTransfer,
			"metadata part is missing", err)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return metadata, faults.Wrap(faults.ClassClient, faults.CodeCorruptTransfer,
			"metadata part does not deserialize", err)
	}
	return metadata, nil
}

// deriveACL computes the effective ACL. Incoming files default to owner-only
// visibility. A comment inherits the ACL of the file it annotates, and a
// collaboration drive honors the ACL the sender shipped.
func (w *FileWriter) deriveACL(ctx context.Context, drv *drive.Drive,
	instructionSet *peer.TransferInstructionSet, metadata drive.FileMetadata) (drive.AccessControlList, error) {

	if instructionSet.FileSystemType == drive.FileSystemComment {
		if metadata.ReferencedFile == nil {
			return drive.AccessControlList{}, faults.Client(faults.CodeCorruptTransfer,
				"comment carries no referenced file")
		}
		referenced, err := w.store.GetByGlobalTransitID(ctx, drv.ID, metadata.ReferencedFile.GlobalTransitID)
		if err != nil {
			return drive.AccessControlList{}, err
		}
		if referenced == nil {
			return drive.AccessControlList{}, faults.RemoteIdentity(faults.CodeReferencedFileMissing,
				"the file this comment references does not exist here")
		}
		if referenced.FileMetadata.IsEncrypted != metadata.IsEncrypted {
			return drive.AccessControlList{}, faults.RemoteIdentity(faults.CodeEncryptionMismatch,
				"comment encryption does not match the referenced file")
		}
		return referenced.ServerMetadata.AccessControlList, nil
	}

	if drv.IsCollaborative && instructionSet.OriginalACL != nil {
		return *instructionSet.OriginalACL, nil
	}
	return drive.OwnerOnlyACL(), nil
}

func (w *FileWriter) storeNormal(ctx context.Context, tempFile drive.InternalFileID, drv *drive.Drive,
	keyHeader drive.KeyHeader, metadata drive.FileMetadata, serverMetadata drive.ServerMetadata,
	ignorePayloads bool) error {

	if metadata.GlobalTransitID == uuid.Nil {
		return faults.Client(faults.CodeMissingTransitID, "file transfer carries no global transit id")
	}

	existing, err := w.store.GetByGlobalTransitID(ctx, drv.ID, metadata.GlobalTransitID)
	if err != nil {
		return err
	}
	if existing == nil {
		existing, err = w.store.GetByUniqueID(ctx, drv.ID, metadata.AppData.UniqueID)
		if err != nil {
			return err
		}
	}

	if existing == nil {
		_, err = w.store.CommitNewFile(ctx, tempFile, keyHeader, metadata, serverMetadata, ignorePayloads)
		return err
	}

	if err := existing.AssertFileIsActive(); err != nil {
		return err
	}
	if !drv.IsCollaborative {
		if err := existing.AssertOriginalSender(metadata.Sender); err != nil {
			return err
		}
	}

	metadata.VersionTag = existing.FileMetadata.VersionTag
	target := drive.InternalFileID{DriveID: existing.DriveID, FileID: existing.FileID}
	_, err = w.store.OverwriteFile(ctx, tempFile, target, keyHeader, metadata, serverMetadata, ignorePayloads)
	return err
}

// storeFeed handles feed-channel content: header-only writes keyed strictly
// by global transit id. The client unique id is meaningless across identity
// boundaries on the feed and is dropped.
func (w *FileWriter) storeFeed(ctx context.Context, tempFile drive.InternalFileID, drv *drive.Drive,
	transferFileType peer.TransferFileType, keyHeader drive.KeyHeader,
	metadata drive.FileMetadata, serverMetadata drive.ServerMetadata) error {

	metadata.AppData.UniqueID = uuid.Nil

	if metadata.GlobalTransitID == uuid.Nil {
		return faults.Client(faults.CodeMissingTransitID, "feed file carries no global transit id")
	}

	existing, err := w.store.GetByGlobalTransitID(ctx, drv.ID, metadata.GlobalTransitID)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = w.store.CommitNewFile(ctx, tempFile, keyHeader, metadata, serverMetadata, true)
		return err
	}

	if err := existing.AssertFileIsActive(); err != nil {
		return err
	}
	// Relayed feed content arrives from the relay, not the author, so the
	// sender match is skipped for it and on collaboration drives.
	if transferFileType != peer.TransferEncryptedFeedFileViaRelay && !drv.IsCollaborative {
		if err := existing.AssertOriginalSender(metadata.Sender); err != nil {
			return err
		}
	}

	target := drive.InternalFileID{DriveID: existing.DriveID, FileID: existing.FileID}
	if metadata.ReactionPreview != nil {
		if err := w.store.UpdateReactionSummary(ctx, target, metadata.ReactionPreview); err != nil {
			return err
		}
	}

	metadata.VersionTag = existing.FileMetadata.VersionTag
	_, err = w.store.OverwriteFile(ctx, tempFile, target, keyHeader, metadata, serverMetadata, true)
	return err
}

// DeleteFile soft-deletes the file previously delivered under the global
// transit id. The header row and blobs remain; only state and searchable
// content change.
func (w *FileWriter) DeleteFile(ctx context.Context, driveID, globalTransitID uuid.UUID) error {
	existing, err := w.store.GetByGlobalTransitID(ctx, driveID, globalTransitID)
	if err != nil {
		return err
	}
	if existing == nil {
		return faults.Client(faults.CodeFileNotFound, "no file with this global transit id")
	}
	return w.store.SoftDelete(ctx, drive.InternalFileID{DriveID: existing.DriveID, FileID: existing.FileID})
}
