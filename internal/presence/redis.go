package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const keyPrefix = "presence:"

// RedisTracker keeps a TTL key per online user. A crashed process therefore stops
// reporting its users as online once the TTL lapses, even though the directory flag
// was never cleared.
type RedisTracker struct {
	client *redis.Client
	users  Directory
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

func NewRedisTracker(client *redis.Client, users Directory, ttl time.Duration, log *slog.Logger) *RedisTracker {
	return &RedisTracker{client: client, users: users, ttl: ttl, log: log, now: time.Now}
}

func key(id uuid.UUID) string { return keyPrefix + id.String() }

func (t *RedisTracker) Online(ctx context.Context, userID uuid.UUID) error {
	if err := t.client.Set(ctx, key(userID), t.now().Unix(), t.ttl).Err(); err != nil {
		return fmt.Errorf("redis set presence: %w", err)
	}
	return t.users.SetPresence(ctx, userID, true, t.now())
}

func (t *RedisTracker) Refresh(ctx context.Context, userID uuid.UUID) error {
	return t.client.Expire(ctx, key(userID), t.ttl).Err()
}

func (t *RedisTracker) Offline(ctx context.Context, userID uuid.UUID) error {
	if err := t.client.Del(ctx, key(userID)).Err(); err != nil {
		t.log.Warn("Failed to clear presence key", "user_id", userID, "error", err)
	}
	return t.users.SetPresence(ctx, userID, false, t.now())
}

func (t *RedisTracker) Statuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	keys := lo.Map(ids, func(id uuid.UUID, _ int) string { return key(id) })
	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget presence: %w", err)
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for i, id := range ids {
		out[id] = values[i] != nil
	}
	return out, nil
}
