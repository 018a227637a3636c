// Package faults carries the error taxonomy used by the incoming transfer
// pipeline. Callers dispatch on the fault class instead of error string
// matching: client and security faults are rejected synchronously, remote
// identity faults are surfaced to the operator, and everything else is
// treated as transient and retried by the inbox.
package faults

import (
	"errors"
	"fmt"
)

// Class partitions faults by how the pipeline reacts to them.
type Class int

const (
	// ClassTransient covers storage I/O errors and anything unclassified.
	// Queued work that fails with a transient fault is retried on the next
	// scheduled drain.
	ClassTransient Class = iota

	// ClassClient means the sender sent something structurally wrong.
	// Rejected synchronously, never queued.
	ClassClient

	// ClassSecurity means the caller lacks rights. Rejected synchronously.
	ClassSecurity

	// ClassRemoteIdentity means the sender's claims conflict with local
	// ground truth. Propagated to the caller on the synchronous path;
	// surfaced out of the batch call on the queued path.
	ClassRemoteIdentity
)

func (c Class) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassSecurity:
		return "security"
	case ClassRemoteIdentity:
		return "remote-identity"
	default:
		return "transient"
	}
}

// Code identifies the specific fault.
type Code int

const (
	CodeUnknown Code = iota

	// Client faults.
	CodeInvalidDrive
	CodeIncompleteUpload
	CodeCorruptTransfer
	CodeMissingTransitID
	CodeInvalidInstructionType
	CodeUnknownSession
	CodeDuplicatePart

	// Security faults.
	CodeAccessDenied
	CodeNotOriginalAuthor
	CodeCannotWriteEncryptedComment

	// Remote identity faults.
	CodeReferencedFileMissing
	CodeEncryptionMismatch
	CodeNotOriginalSender
	CodeNotConnected

	// Commit-state faults.
	CodeFileNotActive
	CodeFileNotFound
)

// Fault is an error tagged with its taxonomy class and code.
type Fault struct {
	Class Class
	Code  Code
	Msg   string
	Err   error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s fault: %s: %v", f.Class, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s fault: %s", f.Class, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// New builds a fault with the given class and code.
func New(class Class, code Code, msg string) *Fault {
	return &Fault{Class: class, Code: code, Msg: msg}
}

// Wrap attaches class and code to an underlying error.
func Wrap(class Class, code Code, msg string, err error) *Fault {
	return &Fault{Class: class, Code: code, Msg: msg, Err: err}
}

// Client builds a client fault.
func Client(code Code, msg string) *Fault { return New(ClassClient, code, msg) }

// Security builds a security fault.
func Security(code Code, msg string) *Fault { return New(ClassSecurity, code, msg) }

// RemoteIdentity builds a remote-identity fault.
func RemoteIdentity(code Code, msg string) *Fault { return New(ClassRemoteIdentity, code, msg) }

// Transient wraps err as a transient fault.
func Transient(msg string, err error) *Fault {
	return Wrap(ClassTransient, CodeUnknown, msg, err)
}

// ClassOf reports the class of err. Errors with no embedded fault are
// transient by definition.
func ClassOf(err error) Class {
	var f *Fault
	if errors.As(err, &f) {
		return f.Class
	}
	return ClassTransient
}

// CodeOf reports the code of err, or CodeUnknown for untagged errors.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeUnknown
}

// IsClass reports whether err carries the given fault class.
func IsClass(err error, class Class) bool {
	return err != nil && ClassOf(err) == class
}
