package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"codementor/internal/model"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache mirrors session standings into Redis: a ZSET of scores
// and a HASH of cumulative times per name.
type LeaderboardCache interface {
	Replace(ctx context.Context, sessionID string, standings []model.Standing) error
	GetTop(ctx context.Context, sessionID string, limit int) ([]model.Standing, error)
	Delete(ctx context.Context, sessionID string) error
}

type leaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(client *redis.Client, ttl time.Duration) LeaderboardCache {
	return &leaderboardCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *leaderboardCache) key(sessionID string) string {
	return fmt.Sprintf("session:%s:lb", sessionID)
}

func (c *leaderboardCache) speedKey(sessionID string) string {
	return fmt.Sprintf("session:%s:lb:speed", sessionID)
}

func (c *leaderboardCache) Replace(ctx context.Context, sessionID string, standings []model.Standing) error {
	key, speedKey := c.key(sessionID), c.speedKey(sessionID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, speedKey)
		if len(standings) == 0 {
			return nil
		}
		members := make([]redis.Z, 0, len(standings))
		speeds := make(map[string]interface{}, len(standings))
		for _, s := range standings {
			members = append(members, redis.Z{Score: float64(s.Score), Member: s.Name})
			speeds[s.Name] = strconv.FormatFloat(s.Speed, 'f', -1, 64)
		}
		pipe.ZAdd(ctx, key, members...)
		pipe.HSet(ctx, speedKey, speeds)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
			pipe.Expire(ctx, speedKey, c.ttl)
		}
		return nil
	})
	return err
}

// GetTop returns up to limit standings, best first. limit <= 0 returns all.
func (c *leaderboardCache) GetTop(ctx context.Context, sessionID string, limit int) ([]model.Standing, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(sessionID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []model.Standing{}, nil
	}

	names := make([]string, len(results))
	for i, z := range results {
		names[i] = z.Member.(string)
	}
	speeds, err := c.client.HMGet(ctx, c.speedKey(sessionID), names...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.Standing, len(results))
	for i, z := range results {
		entries[i] = model.Standing{Name: names[i], Score: int(z.Score)}
		if raw, ok := speeds[i].(string); ok {
			entries[i].Speed, _ = strconv.ParseFloat(raw, 64)
		}
	}
	model.SortStandings(entries)
	return entries, nil
}

func (c *leaderboardCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID), c.speedKey(sessionID)).Err()
}
