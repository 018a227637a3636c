package peer

import (
	"time"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// TransferInboxItem is the durable, queued form of an accepted transfer.
// Everything the processor needs to apply the transfer later is carried on
// the item itself; only the shared secret is re-resolved at processing time.
type TransferInboxItem struct {
	ID                 uuid.UUID               `json:"id"`
	AddedAt            time.Time               `json:"addedAt"`
	Sender             identity.ID             `json:"sender"`
	InstructionType    InstructionType         `json:"instructionType"`
	DriveID            uuid.UUID               `json:"driveId"`
	FileID             uuid.UUID               `json:"fileId"`
	GlobalTransitID    uuid.UUID               `json:"globalTransitId,omitempty"`
	FileSystemType     drive.FileSystemType    `json:"fileSystemType"`
	TransferFileType   TransferFileType        `json:"transferFileType"`
	EncryptedKeyHeader EncryptedKeyHeader      `json:"sharedSecretEncryptedKeyHeader"`
	InstructionSet     *TransferInstructionSet `json:"instructionSet,omitempty"`

	// Marker is the popstamp assigned when the item is checked out of the
	// queue. Zero for items that have never been popped.
	Marker uuid.UUID `json:"-"`
}

// File is the temp file the queued transfer's parts were written to.
func (i *TransferInboxItem) File() drive.InternalFileID {
	return drive.InternalFileID{DriveID: i.DriveID, FileID: i.FileID}
}
