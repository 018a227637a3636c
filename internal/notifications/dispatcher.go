// Package notifications enqueues app notifications for delivery by the
// node's push subsystem. Enqueueing is best-effort: a failure is logged by
// the caller and never fails the transfer that requested it.
package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/identity"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
)

// Options is the sender-requested notification payload.
type Options struct {
	AppID              uuid.UUID `json:"appId"`
	TypeID             uuid.UUID `json:"typeId"`
	TagID              uuid.UUID `json:"tagId,omitempty"`
	Silent             bool      `json:"silent"`
	UnencryptedMessage string    `json:"unEncryptedMessage,omitempty"`
}

// Dispatcher hands a notification to the push subsystem.
type Dispatcher interface {
	Enqueue(ctx context.Context, sender identity.ID, options Options) error
}

// LogDispatcher records notifications in the log only. Used when no queue
// backend is configured and in tests.
type LogDispatcher struct {
	log logging.Logger
}

func NewLogDispatcher(log logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Enqueue(ctx context.Context, sender identity.ID, options Options) error {
	d.log.Info(ctx, "notification enqueued", "sender", sender.String(), "appId", options.AppID.String())
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
