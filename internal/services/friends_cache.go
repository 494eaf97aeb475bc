package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// FriendsCache keeps each user's friend id list in Redis.
// Every failure degrades to a cache miss.
type FriendsCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewFriendsCache creates a new friends cache
func NewFriendsCache(rdb redis.Cmdable, ttl time.Duration) *FriendsCache {
	return &FriendsCache{rdb: rdb, ttl: ttl}
}

func friendsKey(userID int64) string {
	return fmt.Sprintf("cache:friends:%d", userID)
}

// Get returns the cached friend ids of userID
func (c *FriendsCache) Get(ctx context.Context, userID int64) ([]int64, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, friendsKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to read friends cache")
		}
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Corrupt friends cache entry")
		return nil, false
	}
	return ids, true
}

// Set stores the friend ids of userID
func (c *FriendsCache) Set(ctx context.Context, userID int64, ids []int64) {
	if c == nil {
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, friendsKey(userID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to write friends cache")
	}
}

// Invalidate drops the cached lists of every given user
func (c *FriendsCache) Invalidate(ctx context.Context, userIDs ...int64) {
	if c == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = friendsKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Ints64("user_ids", userIDs).Msg("Failed to invalidate friends cache")
	}
}
