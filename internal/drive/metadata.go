package drive

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// FileSystemType selects which pseudo file system a file belongs to.
type FileSystemType int

const (
	// FileSystemStandard is regular drive content.
	FileSystemStandard FileSystemType = 0

	// FileSystemComment is lightweight content attached to another file.
	// Comments inherit the referenced file's ACL and must never be queued
	// when they cannot be written immediately.
	FileSystemComment FileSystemType = 1
)

func (t FileSystemType) String() string {
	if t == FileSystemComment {
		return "comment"
	}
	return "standard"
}

// FileState tracks whether a file is live or soft-deleted.
type FileState int

const (
	FileActive  FileState = 0
	FileDeleted FileState = 1
)

// KeyHeader is the decrypted content key material for a file.
type KeyHeader struct {
	IV     []byte `json:"iv"`
	AESKey []byte `json:"aesKey"`
}

// SecurityGroup is the coarse audience of an ACL.
type SecurityGroup int

const (
	SecurityGroupOwner     SecurityGroup = 0
	SecurityGroupConnected SecurityGroup = 1
	SecurityGroupAnonymous SecurityGroup = 2
)

// AccessControlList describes who may read a file.
type AccessControlList struct {
	RequiredSecurityGroup SecurityGroup `json:"requiredSecurityGroup"`
	CircleIDs             []uuid.UUID   `json:"circleIdList,omitempty"`
}

// OwnerOnlyACL is the default for files arriving from other nodes: only the
// owner can see them until the owner passes them along.
func OwnerOnlyACL() AccessControlList {
	return AccessControlList{RequiredSecurityGroup: SecurityGroupOwner}
}

// ThumbnailDescriptor declares one thumbnail of a payload.
type ThumbnailDescriptor struct {
	PixelWidth   int    `json:"pixelWidth"`
	PixelHeight  int    `json:"pixelHeight"`
	ContentType  string `json:"contentType"`
	BytesWritten int64  `json:"bytesWritten,omitempty"`
}

// TransitKey is the composite part tag a thumbnail travels under:
// payload key + width + height.
func (t ThumbnailDescriptor) TransitKey(payloadKey string) string {
	return payloadKey + strconv.Itoa(t.PixelWidth) + strconv.Itoa(t.PixelHeight)
}

// PayloadDescriptor declares one payload of a file.
type PayloadDescriptor struct {
	Key               string                `json:"key"`
	IV                []byte                `json:"iv,omitempty"`
	UID               uuid.UUID             `json:"uid,omitempty"`
	ContentType       string                `json:"contentType"`
	BytesWritten      int64                 `json:"bytesWritten,omitempty"`
	LastModified      int64                 `json:"lastModified,omitempty"`
	DescriptorContent string                `json:"descriptorContent,omitempty"`
	PreviewThumbnail  *ThumbnailDescriptor  `json:"previewThumbnail,omitempty"`
	Thumbnails        []ThumbnailDescriptor `json:"thumbnails,omitempty"`
}

// GlobalTransitIDFileIdentifier points a comment at the file it annotates.
type GlobalTransitIDFileIdentifier struct {
	TargetDrive     TargetDrive `json:"targetDrive"`
	GlobalTransitID uuid.UUID   `json:"globalTransitId"`
}

// ReactionSummary is the denormalized reaction preview carried on a header.
type ReactionSummary struct {
	TotalCommentCount int            `json:"totalCommentCount"`
	Reactions         map[string]int `json:"reactions,omitempty"`
}

// AppFileMetadata is the application-defined slice of the metadata.
type AppFileMetadata struct {
	UniqueID uuid.UUID   `json:"uniqueId,omitempty"`
	FileType int         `json:"fileType,omitempty"`
	DataType int         `json:"dataType,omitempty"`
	Content  string      `json:"content,omitempty"`
	Tags     []uuid.UUID `json:"tags,omitempty"`
}

// FileMetadata is the sender-authored descriptor of a file.
type FileMetadata struct {
	GlobalTransitID uuid.UUID                      `json:"globalTransitId,omitempty"`
	AppData         AppFileMetadata                `json:"appData"`
	IsEncrypted     bool                           `json:"isEncrypted"`
	Sender          identity.ID                    `json:"senderOdinId,omitempty"`
	VersionTag      uuid.UUID                      `json:"versionTag,omitempty"`
	ReferencedFile  *GlobalTransitIDFileIdentifier `json:"referencedFile,omitempty"`
	ReactionPreview *ReactionSummary               `json:"reactionPreview,omitempty"`
	Payloads        []PayloadDescriptor            `json:"payloads,omitempty"`
	TransitCreated  int64                          `json:"transitCreated,omitempty"`
	TransitUpdated  int64                          `json:"transitUpdated,omitempty"`
}

// ServerMetadata is the receiver-controlled slice of a stored header.
type ServerMetadata struct {
	AccessControlList AccessControlList `json:"accessControlList"`
	FileSystemType    FileSystemType    `json:"fileSystemType"`
	AllowDistribution bool              `json:"allowDistribution"`
}

// ServerFileHeader is a stored file: metadata plus server metadata plus the
// key header as persisted. Owned by this storage engine.
type ServerFileHeader struct {
	FileID         uuid.UUID      `json:"fileId"`
	DriveID        uuid.UUID      `json:"driveId"`
	FileState      FileState      `json:"fileState"`
	KeyHeader      *KeyHeader     `json:"keyHeader,omitempty"`
	FileMetadata   FileMetadata   `json:"fileMetadata"`
	ServerMetadata ServerMetadata `json:"serverMetadata"`
	Created        time.Time      `json:"created"`
	Modified       time.Time      `json:"modified"`
}

// AssertFileIsActive fails when the header is soft-deleted.
func (h *ServerFileHeader) AssertFileIsActive() error {
	if h.FileState != FileActive {
		return faults.Client(faults.CodeFileNotActive, "existing file is not active")
	}
	return nil
}

// AssertOriginalSender fails when sender does not match the stored sender.
func (h *ServerFileHeader) AssertOriginalSender(sender identity.ID) error {
	if !h.FileMetadata.Sender.Equal(sender) {
		return faults.RemoteIdentity(faults.CodeNotOriginalSender,
			"sender does not match the file's original sender")
	}
	return nil
}
