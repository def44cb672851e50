package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

// RedisInbox keeps a capped stream of notifications per user
type RedisInbox struct {
	client    *redis.Client
	maxLen    int64
	dedupeTTL time.Duration
}

// NewRedisInbox creates an inbox. maxLen caps each user stream (approximately).
func NewRedisInbox(client *redis.Client, maxLen int64, dedupeTTL time.Duration) *RedisInbox {
	return &RedisInbox{
		client:    client,
		maxLen:    maxLen,
		dedupeTTL: dedupeTTL,
	}
}

// StreamKey is the stream holding a user's notifications
func StreamKey(userID int64) string {
	return fmt.Sprintf("inbox:user:%d", userID)
}

func dedupeKey(id uuid.UUID) string {
	return "inbox:seen:" + id.String()
}

// deliverScript appends to the user stream and records the notification id
// in one step. It returns 0 when the id was already seen.
var deliverScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
if tonumber(ARGV[1]) > 0 then
    redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[1], '*', 'kind', ARGV[2], 'payload', ARGV[3])
else
    redis.call('XADD', KEYS[2], '*', 'kind', ARGV[2], 'payload', ARGV[3])
end
redis.call('SET', KEYS[1], 1, 'PX', ARGV[4])
return 1
`)

// Deliver appends n to the user's stream. A notification id seen within the
// dedupe TTL is dropped, so redelivered messages are harmless.
func (i *RedisInbox) Deliver(ctx context.Context, n notification.Notification) error {
	body, err := Encode(n)
	if err != nil {
		return err
	}

	keys := []string{dedupeKey(n.ID), StreamKey(n.UserID)}
	_, err = deliverScript.Run(ctx, i.client, keys, i.maxLen, string(n.Kind), body, i.dedupeTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to append notification %s: %w", n.ID, err)
	}
	return nil
}

// Recent returns up to count notifications for the user, newest first
func (i *RedisInbox) Recent(ctx context.Context, userID int64, count int64) ([]notification.Notification, error) {
	msgs, err := i.client.XRevRangeN(ctx, StreamKey(userID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}

	list := make([]notification.Notification, 0, len(msgs))
	for _, msg := range msgs {
		payload, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("inbox entry %s has no payload", msg.ID)
		}
		n, err := Decode([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("inbox entry %s: %w", msg.ID, err)
		}
		list = append(list, n)
	}
	return list, nil
}
