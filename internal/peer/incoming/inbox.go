package incoming

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// InboxStatus is a point-in-time summary of one drive's queue.
type InboxStatus struct {
	TotalItems          int       `json:"totalItems"`
	PoppedCount         int       `json:"poppedCount"`
	OldestItemTimestamp time.Time `json:"oldestItemTimestamp"`
}

// Queue is the durable per-drive inbox. Checkout uses popstamp markers:
// popping stamps rows with a fresh marker instead of deleting them, so a
// crash mid-processing leaves the items recoverable. Items leave the queue
// only through MarkComplete; this gives at-least-once delivery.
type Queue struct {
	db dbx.DBTX
}

func NewQueue(db dbx.DBTX) *Queue {
	return &Queue{db: db}
}

// Add enqueues the item at the tail of its drive's queue.
func (q *Queue) Add(ctx context.Context, item *peer.TransferInboxItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	keyHeader, err := json.Marshal(item.EncryptedKeyHeader)
	if err != nil {
		return err
	}
	var instructionSet []byte
	if item.InstructionSet != nil {
		instructionSet, err = json.Marshal(item.InstructionSet)
		if err != nil {
			return err
		}
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO inbox (id, drive_id, file_id, global_transit_id, sender, instruction_type,
			file_system_type, transfer_file_type, key_header, instruction_set, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID[:], item.DriveID[:], item.FileID[:], uuidOrNull(item.GlobalTransitID),
		item.Sender.String(), int(item.InstructionType), int(item.FileSystemType),
		int(item.TransferFileType), keyHeader, instructionSet, item.AddedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to enqueue inbox item: %w", err)
	}
	return nil
}

// PopBatch checks out up to limit items from the drive's queue in insertion
// order. Checked-out rows are stamped with a fresh marker and skipped by
// subsequent pops until completed, failed, or recovered.
func (q *Queue) PopBatch(ctx context.Context, driveID uuid.UUID, limit int) ([]*peer.TransferInboxItem, error) {
	marker := uuid.New()
	now := time.Now().UnixMilli()

	_, err := q.db.ExecContext(ctx, `
		UPDATE inbox SET popstamp = ?, popped_at = ?
		WHERE id IN (
			SELECT id FROM inbox
			WHERE drive_id = ? AND popstamp IS NULL
			ORDER BY added_at ASC, rowid ASC
			LIMIT ?)`,
		marker[:], now, driveID[:], limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pop inbox items: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, drive_id, file_id, global_transit_id, sender, instruction_type,
			file_system_type, transfer_file_type, key_header, instruction_set, added_at
		FROM inbox WHERE popstamp = ?
		ORDER BY added_at ASC, rowid ASC`, marker[:])
	if err != nil {
		return nil, fmt.Errorf("failed to read popped inbox items: %w", err)
	}
	defer rows.Close()

	var items []*peer.TransferInboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		item.Marker = marker
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkComplete removes the item from the queue. The marker must match the
// checkout that produced the item.
func (q *Queue) MarkComplete(ctx context.Context, id, marker uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM inbox WHERE id = ? AND popstamp = ?`, id[:], marker[:])
	return err
}

// MarkFailed returns the item to the pool for a future pop.
func (q *Queue) MarkFailed(ctx context.Context, id, marker uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE inbox SET popstamp = NULL, popped_at = NULL WHERE id = ? AND popstamp = ?`,
		id[:], marker[:])
	return err
}

// RecoverDead re-pools every item checked out before the cutoff. Called at
// startup to reclaim items stranded by a crash.
func (q *Queue) RecoverDead(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE inbox SET popstamp = NULL, popped_at = NULL WHERE popped_at IS NOT NULL AND popped_at < ?`,
		cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to recover dead inbox items: %w", err)
	}
	return res.RowsAffected()
}

// PendingCount reports the drive's queue status.
func (q *Queue) PendingCount(ctx context.Context, driveID uuid.UUID) (InboxStatus, error) {
	var status InboxStatus
	var oldest sql.NullInt64

	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(popstamp IS NOT NULL), 0), MIN(added_at)
		FROM inbox WHERE drive_id = ?`, driveID[:]).
		Scan(&status.TotalItems, &status.PoppedCount, &oldest)
	if err != nil {
		return InboxStatus{}, fmt.Errorf("failed to count inbox items: %w", err)
	}
	if oldest.Valid {
		status.OldestItemTimestamp = time.UnixMilli(oldest.Int64)
	}
	return status, nil
}

func uuidOrNull(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id[:]
}

func scanInboxItem(rows *sql.Rows) (*peer.TransferInboxItem, error) {
	var item peer.TransferInboxItem
	var id, driveID, fileID, gtid, keyHeader, instructionSet []byte
	var sender string
	var instructionType, fsType, transferType int
	var addedAt int64

	err := rows.Scan(&id, &driveID, &fileID, &gtid, &sender, &instructionType,
		&fsType, &transferType, &keyHeader, &instructionSet, &addedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan inbox item: %w", err)
	}

	copy(item.ID[:], id)
	copy(item.DriveID[:], driveID)
	copy(item.FileID[:], fileID)
	copy(item.GlobalTransitID[:], gtid)
	item.Sender = identity.ID(sender)
	item.InstructionType = peer.InstructionType(instructionType)
	item.FileSystemType = drive.FileSystemType(fsType)
	item.TransferFileType = peer.TransferFileType(transferType)
	item.AddedAt = time.UnixMilli(addedAt)

	if len(keyHeader) > 0 {
		if err := json.Unmarshal(keyHeader, &item.EncryptedKeyHeader); err != nil {
			return nil, fmt.Errorf("failed to decode inbox key header: %w", err)
		}
	}
	if len(instructionSet) > 0 {
		item.InstructionSet = &peer.TransferInstructionSet{}
		if err := json.Unmarshal(instructionSet, item.InstructionSet); err != nil {
			return nil, fmt.Errorf("failed to decode inbox instruction set: %w", err)
		}
	}
	return &item, nil
}
