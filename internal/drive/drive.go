// Package drive holds the storage side of the node: drive addressing, the
// file header index, temp part files for in-flight transfers, and the
// payload blob stores.
package drive

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
)

// TargetDrive is the stable, externally visible address of a drive:
// an alias plus a drive type.
type TargetDrive struct {
	Alias uuid.UUID `json:"alias"`
	Type  uuid.UUID `json:"type"`
}

func (t TargetDrive) IsZero() bool {
	return t.Alias == uuid.Nil && t.Type == uuid.Nil
}

// Drive is a named, access-controlled collection of files on this node.
type Drive struct {
	ID                 uuid.UUID
	Target             TargetDrive
	Name               string
	IsCollaborative    bool
	AllowSubscriptions bool
}

// InternalFileID addresses a file (or temp file) within a drive.
type InternalFileID struct {
	DriveID uuid.UUID
	FileID  uuid.UUID
}

// Repository provides drive rows bound to a DB handle.
type Repository struct {
	db dbx.DBTX
}

func NewRepository(db dbx.DBTX) *Repository {
	return &Repository{db: db}
}

// Create registers a drive. The drive id is assigned here.
func (r *Repository) Create(ctx context.Context, d *Drive) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drives (drive_id, alias, type, name, is_collaborative, allow_subscriptions, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID[:], d.Target.Alias[:], d.Target.Type[:], d.Name,
		d.IsCollaborative, d.AllowSubscriptions, time.Now().UnixMilli())
	return err
}

// Get returns the drive with the given id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Drive, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT drive_id, alias, type, name, is_collaborative, allow_subscriptions
		FROM drives WHERE drive_id = ?`, id[:])
	return scanDrive(row)
}

// GetByTarget returns the drive addressed by the given alias+type pair.
func (r *Repository) GetByTarget(ctx context.Context, target TargetDrive) (*Drive, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT drive_id, alias, type, name, is_collaborative, allow_subscriptions
		FROM drives WHERE alias = ? AND type = ?`, target.Alias[:], target.Type[:])
	return scanDrive(row)
}

// List returns every drive on the node, oldest first.
func (r *Repository) List(ctx context.Context) ([]*Drive, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT drive_id, alias, type, name, is_collaborative, allow_subscriptions
		FROM drives ORDER BY created ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Drive
	for rows.Next() {
		d, err := scanDriveRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriveFrom(s rowScanner) (*Drive, error) {
	var d Drive
	var id, alias, typ []byte
	if err := s.Scan(&id, &alias, &typ, &d.Name, &d.IsCollaborative, &d.AllowSubscriptions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.Client(faults.CodeInvalidDrive, "drive not found")
		}
		return nil, err
	}
	copy(d.ID[:], id)
	copy(d.Target.Alias[:], alias)
	copy(d.Target.Type[:], typ)
	return &d, nil
}

func scanDrive(row *sql.Row) (*Drive, error)     { return scanDriveFrom(row) }
func scanDriveRow(rows *sql.Rows) (*Drive, error) { return scanDriveFrom(rows) }
