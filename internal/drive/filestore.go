package drive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
)

// Store is the file header index plus the blob plumbing needed to commit a
// finalized transfer: header rows in the identity database, payload bytes
// copied from the temp store into the payload store.
//
// Bind a Store to a transaction handle when header mutations must commit
// atomically with other rows (the inbox processor does this). Blob writes
// are not transactional; orphaned blobs are reclaimed by temp-file cleanup.
type Store struct {
	db       dbx.DBTX
	temp     *TempStore
	payloads PayloadStore
}

func NewStore(db dbx.DBTX, temp *TempStore, payloads PayloadStore) *Store {
	return &Store{db: db, temp: temp, payloads: payloads}
}

func uuidOrNil(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id[:]
}

// GetByGlobalTransitID returns the header whose global transit id matches,
// or nil when no file on the drive carries that id.
func (s *Store) GetByGlobalTransitID(ctx context.Context, driveID, gtid uuid.UUID) (*ServerFileHeader, error) {
	if gtid == uuid.Nil {
		return nil, nil
	}
	return s.getHeader(ctx, `SELECT header FROM files WHERE drive_id = ? AND global_transit_id = ?`,
		driveID[:], gtid[:])
}

// GetByUniqueID returns the active header whose client unique id matches.
func (s *Store) GetByUniqueID(ctx context.Context, driveID, uid uuid.UUID) (*ServerFileHeader, error) {
	if uid == uuid.Nil {
		return nil, nil
	}
	return s.getHeader(ctx, `SELECT header FROM files WHERE drive_id = ? AND unique_id = ? AND file_state = ?`,
		driveID[:], uid[:], int(FileActive))
}

func (s *Store) getHeader(ctx context.Context, query string, args ...any) (*ServerFileHeader, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file header: %w", err)
	}

	var header ServerFileHeader
	if err := json.Unmarshal(blob, &header); err != nil {
		return nil, fmt.Errorf("failed to decode file header: %w", err)
	}
	return &header, nil
}

// CommitNewFile promotes a finalized temp file to a long-term file. The temp
// file id becomes the long-term file id. When ignorePayloads is set the
// commit is header-only and no payload bytes are copied.
func (s *Store) CommitNewFile(ctx context.Context, tempFile InternalFileID, keyHeader KeyHeader,
	metadata FileMetadata, serverMetadata ServerMetadata, ignorePayloads bool) (*ServerFileHeader, error) {

	now := time.Now()
	if metadata.VersionTag == uuid.Nil {
		metadata.VersionTag = uuid.New()
	}

	header := &ServerFileHeader{
		FileID:         tempFile.FileID,
		DriveID:        tempFile.DriveID,
		FileState:      FileActive,
		KeyHeader:      &keyHeader,
		FileMetadata:   metadata,
		ServerMetadata: serverMetadata,
		Created:        now,
		Modified:       now,
	}

	blob, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (file_id, drive_id, global_transit_id, unique_id, file_state, sender, header, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		header.FileID[:], header.DriveID[:],
		uuidOrNil(metadata.GlobalTransitID), uuidOrNil(metadata.AppData.UniqueID),
		int(FileActive), metadata.Sender.String(), blob, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert file header: %w", err)
	}

	if !ignorePayloads {
		if err := s.copyPayloads(ctx, tempFile, tempFile, metadata.Payloads); err != nil {
			return nil, err
		}
	}
	return header, nil
}

// OverwriteFile replaces the header of an existing long-term file with the
// finalized transfer's metadata. The version tag must already have been
// carried forward by the caller. With ignorePayloads set, the payload
// descriptors already on disk are preserved untouched.
func (s *Store) OverwriteFile(ctx context.Context, tempFile, target InternalFileID, keyHeader KeyHeader,
	metadata FileMetadata, serverMetadata ServerMetadata, ignorePayloads bool) (*ServerFileHeader, error) {

	existing, err := s.getHeader(ctx, `SELECT header FROM files WHERE file_id = ?`, target.FileID[:])
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, faults.Client(faults.CodeFileNotFound, "overwrite target no longer exists")
	}

	if ignorePayloads {
		metadata.Payloads = existing.FileMetadata.Payloads
	}

	now := time.Now()
	// a header save always produces a new version tag on this node
	metadata.VersionTag = uuid.New()

	header := &ServerFileHeader{
		FileID:         target.FileID,
		DriveID:        target.DriveID,
		FileState:      FileActive,
		KeyHeader:      &keyHeader,
		FileMetadata:   metadata,
		ServerMetadata: serverMetadata,
		Created:        existing.Created,
		Modified:       now,
	}

	blob, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	err = dbx.ExecAffectingOne(ctx, s.db, `
		UPDATE files SET global_transit_id = ?, unique_id = ?, file_state = ?, sender = ?, header = ?, modified = ?
		WHERE file_id = ?`,
		uuidOrNil(metadata.GlobalTransitID), uuidOrNil(metadata.AppData.UniqueID),
		int(FileActive), metadata.Sender.String(), blob, now.UnixMilli(), target.FileID[:])
	if err != nil {
		return nil, fmt.Errorf("failed to overwrite file header: %w", err)
	}

	if !ignorePayloads {
		if err := s.copyPayloads(ctx, tempFile, target, metadata.Payloads); err != nil {
			return nil, err
		}
	}
	return header, nil
}

// SoftDelete marks the file deleted and scrubs its searchable content.
// Blobs and the header row itself remain; this is never a hard delete.
func (s *Store) SoftDelete(ctx context.Context, target InternalFileID) error {
	existing, err := s.getHeader(ctx, `SELECT header FROM files WHERE file_id = ?`, target.FileID[:])
	if err != nil {
		return err
	}
	if existing == nil {
		return faults.Client(faults.CodeFileNotFound, "delete target does not exist")
	}

	existing.FileState = FileDeleted
	existing.FileMetadata.AppData.Content = ""
	existing.FileMetadata.AppData.Tags = nil
	existing.FileMetadata.ReactionPreview = nil
	existing.FileMetadata.VersionTag = uuid.New()
	existing.Modified = time.Now()

	return s.saveHeader(ctx, existing)
}

// UpdateReactionSummary replaces the reaction preview on a stored header.
func (s *Store) UpdateReactionSummary(ctx context.Context, target InternalFileID, summary *ReactionSummary) error {
	existing, err := s.getHeader(ctx, `SELECT header FROM files WHERE file_id = ?`, target.FileID[:])
	if err != nil {
		return err
	}
	if existing == nil {
		return faults.Client(faults.CodeFileNotFound, "reaction summary target does not exist")
	}

	existing.FileMetadata.ReactionPreview = summary
	existing.Modified = time.Now()
	return s.saveHeader(ctx, existing)
}

func (s *Store) saveHeader(ctx context.Context, header *ServerFileHeader) error {
	blob, err := json.Marshal(header)
	if err != nil {
		return err
	}
	err = dbx.ExecAffectingOne(ctx, s.db, `
		UPDATE files SET global_transit_id = ?, unique_id = ?, file_state = ?, header = ?, modified = ?
		WHERE file_id = ?`,
		uuidOrNil(header.FileMetadata.GlobalTransitID), uuidOrNil(header.FileMetadata.AppData.UniqueID),
		int(header.FileState), blob, header.Modified.UnixMilli(), header.FileID[:])
	if err != nil {
		return fmt.Errorf("failed to save file header: %w", err)
	}
	return nil
}

func (s *Store) copyPayloads(ctx context.Context, tempFile, target InternalFileID, payloads []PayloadDescriptor) error {
	for _, p := range payloads {
		data, err := s.temp.ReadPart(tempFile, p.Key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// header-only update for a payload that was not re-sent
				continue
			}
			return fmt.Errorf("failed to read payload part %s: %w", p.Key, err)
		}
		if err := s.payloads.Put(ctx, target, p.Key, data); err != nil {
			return fmt.Errorf("failed to store payload %s: %w", p.Key, err)
		}

		for _, t := range p.Thumbnails {
			key := t.TransitKey(p.Key)
			data, err := s.temp.ReadPart(tempFile, key)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return fmt.Errorf("failed to read thumbnail part %s: %w", key, err)
			}
			if err := s.payloads.Put(ctx, target, key, data); err != nil {
				return fmt.Errorf("failed to store thumbnail %s: %w", key, err)
			}
		}
	}
	return nil
}
