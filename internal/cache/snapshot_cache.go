package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codementor/internal/model"
	"codementor/internal/repository"

	"github.com/redis/go-redis/v9"
)

// snapshotCache stores exported sessions as JSON blobs with a TTL.
type snapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache returns a Redis-backed snapshot store. A ttl <= 0 keeps
// snapshots until they are overwritten.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) repository.SnapshotRepo {
	return &snapshotCache{client: client, ttl: ttl}
}

func (c *snapshotCache) key(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

func (c *snapshotCache) Save(ctx context.Context, snap *model.Snapshot) (string, error) {
	if snap.SessionID == "" {
		return "", repository.ErrInvalidSnapshotID
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	key := c.key(snap.SessionID)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return "redis://" + key, nil
}

func (c *snapshotCache) Load(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", repository.ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	snap, err := model.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	snap.SessionID = sessionID
	return snap, nil
}
