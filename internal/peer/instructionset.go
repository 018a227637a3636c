package peer

import (
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/notifications"
)

// UploadManifest declares up front every payload and thumbnail the sender
// intends to upload in a session. Finalize refuses a session whose received
// parts do not cover the manifest.
type UploadManifest struct {
	PayloadDescriptors []drive.PayloadDescriptor `json:"payloadDescriptors,omitempty"`
}

// TransferInstructionSet is the first part of every transfer: where the file
// goes, what kind of transfer it is, and the sealed key material.
type TransferInstructionSet struct {
	TargetDrive                    drive.TargetDrive        `json:"targetDrive"`
	FileSystemType                 drive.FileSystemType     `json:"fileSystemType"`
	TransferFileType               TransferFileType         `json:"transferFileType"`
	SharedSecretEncryptedKeyHeader EncryptedKeyHeader       `json:"sharedSecretEncryptedKeyHeader"`
	ContentsProvided               SendContents             `json:"contentsProvided"`
	OriginalACL                    *drive.AccessControlList `json:"originalAcl,omitempty"`
	AppNotificationOptions         *notifications.Options   `json:"appNotificationOptions,omitempty"`
	Manifest                       UploadManifest           `json:"manifest"`
}

// AssertIsValid rejects an instruction set missing its key material. Even
// unencrypted files travel with a sealed key header on the wire.
func (s *TransferInstructionSet) AssertIsValid() error {
	if len(s.SharedSecretEncryptedKeyHeader.IV) == 0 || len(s.SharedSecretEncryptedKeyHeader.EncryptedAESKey) == 0 {
		return faults.Client(faults.CodeCorruptTransfer, "transfer instruction set is missing key header material")
	}
	return nil
}
