package incoming

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/homebase-id/odin-core-sub020/internal/connections"
	"github.com/homebase-id/odin-core-sub020/internal/dbx"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// Processor drains a drive's inbox. Each item is applied inside its own
// transaction covering both the file mutation and the queue transition, so
// an item is either fully applied and gone or untouched and re-poppable.
type Processor struct {
	db       *sql.DB
	temp     *drive.TempStore
	payloads drive.PayloadStore
	drives   *drive.Repository
	queue    *Queue
	log      logging.Logger

	// deadLetterRemoteFaults removes items that fail with a remote-identity
	// fault instead of re-pooling them. Off by default: the operator sees
	// the item until the conflict is resolved.
	deadLetterRemoteFaults bool
}

func NewProcessor(db *sql.DB, temp *drive.TempStore, payloads drive.PayloadStore,
	log logging.Logger, deadLetterRemoteFaults bool) *Processor {

	return &Processor{
		db:                     db,
		temp:                   temp,
		payloads:               payloads,
		drives:                 drive.NewRepository(db),
		queue:                  NewQueue(db),
		log:                    log,
		deadLetterRemoteFaults: deadLetterRemoteFaults,
	}
}

// ProcessInbox drains up to batchSize items from the target drive's inbox
// and reports the queue status afterwards. Transient failures leave the
// item queued for the next drain; a remote-identity fault stops the batch
// and surfaces to the caller.
func (p *Processor) ProcessInbox(ctx context.Context, target drive.TargetDrive, batchSize int) (InboxStatus, error) {
	drv, err := p.drives.GetByTarget(ctx, target)
	if err != nil {
		return InboxStatus{}, err
	}

	status, err := p.queue.PendingCount(ctx, drv.ID)
	if err != nil {
		return InboxStatus{}, err
	}
	p.log.Info(ctx, "processing inbox",
		"drive", drv.ID.String(), "total", status.TotalItems, "popped", status.PoppedCount,
		"oldest", status.OldestItemTimestamp)

	items, err := p.queue.PopBatch(ctx, drv.ID, batchSize)
	if err != nil {
		return status, err
	}

	for i, item := range items {
		if err := p.processItem(ctx, item); err != nil {
			if stop := p.handleFailure(ctx, item, err); stop != nil {
				p.repoolRemaining(ctx, items[i+1:])
				status, _ = p.queue.PendingCount(ctx, drv.ID)
				return status, stop
			}
			continue
		}

		if err := p.temp.Cleanup(item.File()); err != nil {
			p.log.Warn(ctx, "failed to clean up processed item", "item", item.ID.String(), "error", err)
		}
	}

	return p.queue.PendingCount(ctx, drv.ID)
}

// processItem applies one item inside a transaction. The queue removal
// commits with the file mutation or not at all.
func (p *Processor) processItem(ctx context.Context, item *peer.TransferInboxItem) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sharedSecret, err := connections.NewRegistry(tx).SharedSecretFor(ctx, item.Sender)
		if err != nil {
			return err
		}

		var keyHeader drive.KeyHeader
		if !item.EncryptedKeyHeader.IsEmpty() {
			keyHeader, err = item.EncryptedKeyHeader.Decrypt(sharedSecret)
			if err != nil {
				return faults.Wrap(faults.ClassClient, faults.CodeCorruptTransfer,
					"queued key header does not decrypt", err)
			}
		}

		writer := NewFileWriter(drive.NewStore(tx, p.temp, p.payloads), drive.NewRepository(tx), p.temp, p.log)

		switch item.InstructionType {
		case peer.InstructionSaveFile:
			if item.InstructionSet == nil {
				return faults.Client(faults.CodeCorruptTransfer, "queued item carries no instruction set")
			}
			err = writer.HandleFile(ctx, item.File(), item.Sender, item.InstructionSet, keyHeader)
		case peer.InstructionDeleteLinkedFile:
			err = writer.DeleteFile(ctx, item.DriveID, item.GlobalTransitID)
		default:
			err = faults.Client(faults.CodeInvalidInstructionType,
				fmt.Sprintf("unhandled instruction type %d", item.InstructionType))
		}
		if err != nil {
			return err
		}

		return NewQueue(tx).MarkComplete(ctx, item.ID, item.Marker)
	})
}

// handleFailure records the failed item's fate. A non-nil return stops the
// batch and propagates to the caller.
func (p *Processor) handleFailure(ctx context.Context, item *peer.TransferInboxItem, err error) error {
	class := faults.ClassOf(err)
	p.log.Warn(ctx, "inbox item failed",
		"item", item.ID.String(), "sender", item.Sender.String(),
		"class", class.String(), "error", err)

	if class == faults.ClassRemoteIdentity {
		if p.deadLetterRemoteFaults {
			if removeErr := p.queue.MarkComplete(ctx, item.ID, item.Marker); removeErr != nil {
				p.log.Error(ctx, "failed to dead-letter inbox item", "item", item.ID.String(), "error", removeErr)
			}
		} else if failErr := p.queue.MarkFailed(ctx, item.ID, item.Marker); failErr != nil {
			p.log.Error(ctx, "failed to re-pool inbox item", "item", item.ID.String(), "error", failErr)
		}
		return err
	}

	if failErr := p.queue.MarkFailed(ctx, item.ID, item.Marker); failErr != nil {
		p.log.Error(ctx, "failed to re-pool inbox item", "item", item.ID.String(), "error", failErr)
	}
	return nil
}

// repoolRemaining returns still-checked-out items to the pool when a batch
// stops early.
func (p *Processor) repoolRemaining(ctx context.Context, items []*peer.TransferInboxItem) {
	for _, item := range items {
		if err := p.queue.MarkFailed(ctx, item.ID, item.Marker); err != nil {
			p.log.Error(ctx, "failed to re-pool inbox item", "item", item.ID.String(), "error", err)
		}
	}
}

// RecoverDead re-pools items stranded by a crash. Called once at startup.
func (p *Processor) RecoverDead(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.queue.RecoverDead(ctx, cutoff)
}
