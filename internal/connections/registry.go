// Package connections is the registry of identities this node is connected
// to. The inbox processor re-resolves a sender's shared secret here: an item
// from an identity that is no longer connected can never be authorized, so
// that lookup failing is a terminal (remote-identity) state, not transient.
package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/homebase-id/odin-core-sub020/internal/cryptox"
	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// Record is one stored connection.
type Record struct {
	Identity    identity.ID
	AccessToken []byte
	TokenSalt   []byte
	Connected   bool
}

// Registry provides connection rows bound to a DB handle.
type Registry struct {
	db dbx.DBTX
}

func NewRegistry(db dbx.DBTX) *Registry {
	return &Registry{db: db}
}

// Upsert stores or refreshes a connection record.
func (r *Registry) Upsert(ctx context.Context, rec *Record) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections (identity, access_token, token_salt, connected, created, modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			access_token = excluded.access_token,
			token_salt = excluded.token_salt,
			connected = excluded.connected,
			modified = excluded.modified`,
		rec.Identity.String(), rec.AccessToken, rec.TokenSalt, rec.Connected, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

// Disconnect marks the identity as no longer connected without dropping the
// record.
func (r *Registry) Disconnect(ctx context.Context, id identity.ID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE connections SET connected = 0, modified = ? WHERE identity = ?`,
		time.Now().UnixMilli(), id.String())
	return err
}

// Get returns the connection record for id, or nil when none exists.
func (r *Registry) Get(ctx context.Context, id identity.ID) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT identity, access_token, token_salt, connected
		FROM connections WHERE identity = ?`, id.String())

	rec := &Record{}
	var raw string
	err := row.Scan(&raw, &rec.AccessToken, &rec.TokenSalt, &rec.Connected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	rec.Identity = identity.ID(raw)
	return rec, nil
}

// SharedSecretFor derives the shared secret for a connected identity from
// its stored access token. An unknown or disconnected identity is a
// remote-identity fault.
func (r *Registry) SharedSecretFor(ctx context.Context, id identity.ID) ([]byte, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Connected {
		return nil, faults.RemoteIdentity(faults.CodeNotConnected,
			fmt.Sprintf("sender %s is not connected", id))
	}
	return cryptox.DeriveSharedSecret(rec.AccessToken, rec.TokenSalt), nil
}
