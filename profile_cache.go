package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const profileCacheTTL = 10 * time.Minute

// redisProfileCache stores parsed profiles as JSON under profile:<userID>.
// Entries are dropped on every save and, through the process-wide
// subscription in newProfileSync, on every change event for the user. The TTL
// bounds how long a missed notification can go unnoticed.
type redisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ profileCache = (*redisProfileCache)(nil)

func newRedisProfileCache(client *redis.Client) *redisProfileCache {
	return &redisProfileCache{client: client, ttl: profileCacheTTL}
}

// newRedisClient parses a redis:// URL and checks the server is reachable.
func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Connected to Redis at %s", opts.Addr)
	return client, nil
}

func profileCacheKey(userID int) string {
	return fmt.Sprintf("profile:%d", userID)
}

func (c *redisProfileCache) Get(ctx context.Context, userID int) (userProfile, bool) {
	data, err := c.client.Get(ctx, profileCacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[profileCache.Get] user %d: %v", userID, err)
		}
		return userProfile{}, false
	}

	var p userProfile
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[profileCache.Get] user %d: dropping undecodable entry: %v", userID, err)
		c.Invalidate(ctx, userID)
		return userProfile{}, false
	}
	return p, true
}

func (c *redisProfileCache) Set(ctx context.Context, userID int, p userProfile) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("[profileCache.Set] user %d: %v", userID, err)
		return
	}
	if err := c.client.Set(ctx, profileCacheKey(userID), data, c.ttl).Err(); err != nil {
		log.Printf("[profileCache.Set] user %d: %v", userID, err)
	}
}

func (c *redisProfileCache) Invalidate(ctx context.Context, userID int) {
	if err := c.client.Del(ctx, profileCacheKey(userID)).Err(); err != nil {
		log.Printf("[profileCache.Invalidate] user %d: %v", userID, err)
	}
}
