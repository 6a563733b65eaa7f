package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/strandapp/strand-service/internal/post"
)

// Cache key patterns
const (
	MembershipKey = "membership:%s:%s" // membership:userID:groupID
)

// Cache durations
const (
	MembershipCacheDuration = 5 * time.Minute // Group membership doesn't change often
)

// MembershipCache wraps a membership store with Redis caching. Each
// (user, group) pair caches as its own key holding "1" or "0", so a batched
// lookup is one MGET plus at most one database round trip for the misses.
type MembershipCache struct {
	store post.MembershipStore
	redis *redis.Client
}

// NewMembershipCache creates a new membership cache
func NewMembershipCache(store post.MembershipStore, redisClient *redis.Client) *MembershipCache {
	return &MembershipCache{
		store: store,
		redis: redisClient,
	}
}

// GetMemberGroupIDs returns the subset of groupIDs the user belongs to,
// serving cached pairs and fetching the rest from the database in one batch.
// Negative results cache too, so repeated forbidden requests stay cheap.
func (c *MembershipCache) GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(groupIDs))
	for i, groupID := range groupIDs {
		keys[i] = fmt.Sprintf(MembershipKey, userID, groupID)
	}

	var member []string
	var misses []string

	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		// Redis down is not fatal: fall through to the database for everything.
		misses = groupIDs
	} else {
		for i, v := range cached {
			switch v {
			case "1":
				member = append(member, groupIDs[i])
			case "0":
				// Cached negative, skip.
			default:
				misses = append(misses, groupIDs[i])
			}
		}
	}

	if len(misses) == 0 {
		return member, nil
	}

	// Cache miss - fetch from database in one batched query
	fromDB, err := c.store.GetMemberGroupIDs(ctx, userID, misses)
	if err != nil {
		return nil, err
	}

	isMember := make(map[string]bool, len(fromDB))
	for _, groupID := range fromDB {
		isMember[groupID] = true
	}

	// Cache the results, positives and negatives alike
	pipe := c.redis.Pipeline()
	for _, groupID := range misses {
		val := "0"
		if isMember[groupID] {
			val = "1"
			member = append(member, groupID)
		}
		pipe.Set(ctx, fmt.Sprintf(MembershipKey, userID, groupID), val, MembershipCacheDuration)
	}
	pipe.Exec(ctx)

	return member, nil
}

// InvalidateMembership clears cached membership for a user in the given groups
func (c *MembershipCache) InvalidateMembership(ctx context.Context, userID string, groupIDs []string) {
	if len(groupIDs) == 0 {
		return
	}

	keys := make([]string, len(groupIDs))
	for i, groupID := range groupIDs {
		keys[i] = fmt.Sprintf(MembershipKey, userID, groupID)
	}

	c.redis.Del(ctx, keys...)
}
