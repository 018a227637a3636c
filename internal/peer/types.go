// Package peer holds the wire-level types exchanged between identity hosts
// during a file transfer: instruction sets, sealed key headers, and the
// queued form of a transfer awaiting inbox processing.
package peer

// TransferFileType distinguishes a regular transfer from feed-channel
// variants, which carry their own write rules.
type TransferFileType int

const (
	// TransferNormal is a standard peer-to-peer file transfer.
	TransferNormal TransferFileType = 0

	// TransferEncryptedFeedFile is feed content pushed directly by the
	// author's node.
	TransferEncryptedFeedFile TransferFileType = 1

	// TransferEncryptedFeedFileViaRelay is feed content forwarded by a
	// relay on the author's behalf.
	TransferEncryptedFeedFileViaRelay TransferFileType = 2
)

func (t TransferFileType) String() string {
	switch t {
	case TransferEncryptedFeedFile:
		return "encrypted-feed-file"
	case TransferEncryptedFeedFileViaRelay:
		return "encrypted-feed-file-via-relay"
	default:
		return "normal"
	}
}

// IsFeed reports whether the transfer targets the feed channel.
func (t TransferFileType) IsFeed() bool {
	return t == TransferEncryptedFeedFile || t == TransferEncryptedFeedFileViaRelay
}

// InstructionType says what a queued inbox item asks the processor to do.
type InstructionType int

const (
	InstructionNone InstructionType = 0

	// InstructionSaveFile writes or overwrites a complete file.
	InstructionSaveFile InstructionType = 1

	// InstructionSavePayloads updates payloads of an existing file.
	InstructionSavePayloads InstructionType = 2

	// InstructionDeleteLinkedFile soft-deletes the file the sender
	// previously delivered.
	InstructionDeleteLinkedFile InstructionType = 3
)

func (t InstructionType) String() string {
	switch t {
	case InstructionSaveFile:
		return "save-file"
	case InstructionSavePayloads:
		return "save-payloads"
	case InstructionDeleteLinkedFile:
		return "delete-linked-file"
	default:
		return "none"
	}
}

// SendContents is a bit set naming which parts the sender will upload.
type SendContents int

const (
	SendHeader     SendContents = 1
	SendThumbnails SendContents = 2
	SendPayload    SendContents = 4
)

// Has reports whether the flag is present in the set.
func (s SendContents) Has(flag SendContents) bool { return s&flag != 0 }

// ResponseCode is the synchronous outcome reported to the sending host.
type ResponseCode int

const (
	// ResponseRejected means the transfer was refused outright.
	ResponseRejected ResponseCode = 0

	// ResponseAcceptedIntoInbox means the transfer was durably queued and
	// will be applied by the next inbox drain.
	ResponseAcceptedIntoInbox ResponseCode = 1

	// ResponseAcceptedDirectWrite means the file was committed before the
	// call returned.
	ResponseAcceptedDirectWrite ResponseCode = 2
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseAcceptedIntoInbox:
		return "accepted-into-inbox"
	case ResponseAcceptedDirectWrite:
		return "accepted-direct-write"
	default:
		return "rejected"
	}
}
