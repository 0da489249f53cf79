package resolver

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache keeps resolved username -> recipient id pairs in redis so repeat
// buyers skip the fragment lookup. Purely an optimization: every cache
// failure degrades to a live lookup.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{Client: client, TTL: ttl}
}

func cacheKey(username string) string {
	return "stars_recipient:" + username
}

func (c *Cache) Get(ctx context.Context, username string) (string, bool) {
	val, err := c.Client.Get(ctx, cacheKey(username)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("recipient cache get failed: %v", err)
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, username, recipientID string) {
	if err := c.Client.Set(ctx, cacheKey(username), recipientID, c.TTL).Err(); err != nil {
		log.Printf("recipient cache set failed: %v", err)
	}
}
