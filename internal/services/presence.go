package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users were recently active
type Presence struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewPresence creates a new presence tracker
func NewPresence(rdb redis.Cmdable, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl}
}

func onlineKey(userID int64) string {
	return fmt.Sprintf("online:%d", userID)
}

// Touch marks userID as online for the presence TTL
func (p *Presence) Touch(ctx context.Context, userID int64) error {
	err := p.rdb.Set(ctx, onlineKey(userID), time.Now().UTC().Format(time.RFC3339), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to mark user online: %w", err)
	}
	return nil
}

// FilterOnline returns the subset of userIDs that are online, in input order
func (p *Presence) FilterOnline(ctx context.Context, userIDs []int64) ([]int64, error) {
	online := []int64{}
	if p == nil || len(userIDs) == 0 {
		return online, nil
	}

	cmds := make([]*redis.IntCmd, len(userIDs))
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.Exists(ctx, onlineKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check presence: %w", err)
	}

	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}
