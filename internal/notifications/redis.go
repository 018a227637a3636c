package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// notificationQueueKey is the redis list drained by the push dispatcher.
const notificationQueueKey = "node:notifications"

// RedisDispatcher enqueues notifications on a redis list, fire-and-forget.
type RedisDispatcher struct {
	client *redis.Client
}

func NewRedisDispatcher(addr string) *RedisDispatcher {
	return &RedisDispatcher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

type queuedNotification struct {
	Sender    string  `json:"sender"`
	Options   Options `json:"options"`
	Timestamp int64   `json:"timestamp"`
}

func (d *RedisDispatcher) Enqueue(ctx context.Context, sender identity.ID, options Options) error {
	payload, err := json.Marshal(queuedNotification{
		Sender:    sender.String(),
		Options:   options,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return d.client.LPush(ctx, notificationQueueKey, payload).Err()
}

// Close releases the underlying redis client.
func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}

var _ Dispatcher = (*RedisDispatcher)(nil)
