// internal/workers/requests/request-created/dedupe.go
package requestcreated

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MarkerStore remembers which recipients were already sent a push for a
// request, so a redelivered job can skip them.
type MarkerStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type RedisMarkers struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisMarkers(client redis.Cmdable, ttl time.Duration) *RedisMarkers {
	return &RedisMarkers{client: client, ttl: ttl}
}

func (m *RedisMarkers) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check marker %s: %w", key, err)
	}
	return n > 0, nil
}

func (m *RedisMarkers) Mark(ctx context.Context, key string) error {
	if err := m.client.Set(ctx, key, "1", m.ttl).Err(); err != nil {
		return fmt.Errorf("set marker %s: %w", key, err)
	}
	return nil
}

func fcmMarkerKey(requestID, userID string) string {
	return TaskType + ":" + requestID + ":fcm:" + userID
}

var mailNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("request-workers/mail"))

// MailIDFor is the stable mail document id for a request.
func MailIDFor(requestID string) string {
	return uuid.NewSHA1(mailNamespace, []byte(requestID)).String()
}
