package cache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, mr, cleanup
}

type countingStore struct {
	member  map[string]bool
	lookups int32
}

func (s *countingStore) GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error) {
	atomic.AddInt32(&s.lookups, 1)
	var out []string
	for _, id := range groupIDs {
		if s.member[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestMembershipCache_MissThenHit(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := &countingStore{member: map[string]bool{"g1": true, "g3": true}}
	c := NewMembershipCache(store, redisClient)

	ctx := context.Background()

	got, err := c.GetMemberGroupIDs(ctx, "u1", []string{"g1", "g2", "g3"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 member groups, got %v", got)
	}
	if atomic.LoadInt32(&store.lookups) != 1 {
		t.Fatalf("Expected 1 database lookup, got %d", store.lookups)
	}

	// Second call must be served entirely from cache
	got, err = c.GetMemberGroupIDs(ctx, "u1", []string{"g1", "g2", "g3"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 member groups from cache, got %v", got)
	}
	if atomic.LoadInt32(&store.lookups) != 1 {
		t.Fatalf("Expected cached result without a second lookup, got %d lookups", store.lookups)
	}
}

func TestMembershipCache_NegativeResultsCached(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := &countingStore{member: map[string]bool{}}
	c := NewMembershipCache(store, redisClient)

	ctx := context.Background()

	got, err := c.GetMemberGroupIDs(ctx, "u1", []string{"g1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Expected no member groups, got %v", got)
	}

	// The negative verdict is cached too
	c.GetMemberGroupIDs(ctx, "u1", []string{"g1"})
	if atomic.LoadInt32(&store.lookups) != 1 {
		t.Fatalf("Expected negative result to be cached, got %d lookups", store.lookups)
	}
}

func TestMembershipCache_PartialHitFetchesOnlyMisses(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := &countingStore{member: map[string]bool{"g1": true, "g2": true}}
	c := NewMembershipCache(store, redisClient)

	ctx := context.Background()

	// Warm g1 only
	c.GetMemberGroupIDs(ctx, "u1", []string{"g1"})

	got, err := c.GetMemberGroupIDs(ctx, "u1", []string{"g1", "g2"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected both groups, got %v", got)
	}
	if atomic.LoadInt32(&store.lookups) != 2 {
		t.Fatalf("Expected exactly 2 lookups (warm + miss batch), got %d", store.lookups)
	}
}

func TestMembershipCache_Invalidate(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := &countingStore{member: map[string]bool{"g1": true}}
	c := NewMembershipCache(store, redisClient)

	ctx := context.Background()

	c.GetMemberGroupIDs(ctx, "u1", []string{"g1"})
	c.InvalidateMembership(ctx, "u1", []string{"g1"})
	c.GetMemberGroupIDs(ctx, "u1", []string{"g1"})

	if atomic.LoadInt32(&store.lookups) != 2 {
		t.Fatalf("Expected invalidation to force a fresh lookup, got %d lookups", store.lookups)
	}
}

func TestMembershipCache_RedisDownFallsThrough(t *testing.T) {
	redisClient, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	store := &countingStore{member: map[string]bool{"g1": true}}
	c := NewMembershipCache(store, redisClient)

	mr.Close()

	got, err := c.GetMemberGroupIDs(context.Background(), "u1", []string{"g1"})
	if err != nil {
		t.Fatalf("Expected database fallback when redis is down, got error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected membership from database fallback, got %v", got)
	}
}
