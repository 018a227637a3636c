// Package authz models the caller's request context: who is calling, how
// they authenticated, and what they may do to which drives.
package authz

import (
	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// AuthClass is the authentication class of a caller. Only peer-certificate
// callers are ever eligible for the direct-write path.
type AuthClass int

const (
	// AuthClassOther covers bearer tokens and any non-certificate scheme.
	AuthClassOther AuthClass = 0

	// AuthClassPeerCertificate is mutual-TLS peer authentication.
	AuthClassPeerCertificate AuthClass = 1
)

// DriveGrant is a caller's permission on one drive, with the storage key
// when the grant carries it.
type DriveGrant struct {
	DriveID    uuid.UUID
	CanWrite   bool
	StorageKey []byte
}

// Context is the resolved permission state for one request.
type Context struct {
	Caller       identity.ID
	Class        AuthClass
	sharedSecret []byte
	grants       map[drive.TargetDrive]DriveGrant
	byID         map[uuid.UUID]DriveGrant
}

// NewContext builds a request context from resolved grants.
func NewContext(caller identity.ID, class AuthClass, sharedSecret []byte, grants map[drive.TargetDrive]DriveGrant) *Context {
	byID := make(map[uuid.UUID]DriveGrant, len(grants))
	for _, g := range grants {
		byID[g.DriveID] = g
	}
	return &Context{
		Caller:       caller,
		Class:        class,
		sharedSecret: sharedSecret,
		grants:       grants,
		byID:         byID,
	}
}

// SharedSecret is the caller's connection shared secret.
func (c *Context) SharedSecret() []byte { return c.sharedSecret }

// ResolveDriveID maps a target drive to its internal id. Unresolvable
// targets are an InvalidDrive client fault: the caller has no grant there.
func (c *Context) ResolveDriveID(target drive.TargetDrive) (uuid.UUID, error) {
	g, ok := c.grants[target]
	if !ok {
		return uuid.Nil, faults.Client(faults.CodeInvalidDrive, "target drive is not resolvable in this context")
	}
	return g.DriveID, nil
}

// AssertCanWriteToDrive fails with an access-denied security fault when the
// caller holds no write grant for the drive.
func (c *Context) AssertCanWriteToDrive(driveID uuid.UUID) error {
	g, ok := c.byID[driveID]
	if !ok || !g.CanWrite {
		return faults.Security(faults.CodeAccessDenied, "caller may not write to this drive")
	}
	return nil
}

// TryGetDriveStorageKey returns the drive's storage key when the caller's
// context currently holds it.
func (c *Context) TryGetDriveStorageKey(driveID uuid.UUID) ([]byte, bool) {
	g, ok := c.byID[driveID]
	if !ok || len(g.StorageKey) == 0 {
		return nil, false
	}
	return g.StorageKey, true
}
