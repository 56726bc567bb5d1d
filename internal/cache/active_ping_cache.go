package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivePingCache remembers the one ping each participant has in progress.
type ActivePingCache interface {
	SetActive(ctx context.Context, username, pingID string) error
	// GetActive returns "" when the participant has no ping in progress.
	GetActive(ctx context.Context, username string) (string, error)
	// ClearActive removes the pointer only if it still refers to pingID.
	ClearActive(ctx context.Context, username, pingID string) error
}

type activePingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewActivePingCache(client *redis.Client, ttl time.Duration) ActivePingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &activePingCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *activePingCache) key(username string) string {
	return fmt.Sprintf("user:%s:activePing", username)
}

func (c *activePingCache) SetActive(ctx context.Context, username, pingID string) error {
	return c.client.Set(ctx, c.key(username), pingID, c.ttl).Err()
}

func (c *activePingCache) GetActive(ctx context.Context, username string) (string, error) {
	id, err := c.client.Get(ctx, c.key(username)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

var clearIfEqual = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *activePingCache) ClearActive(ctx context.Context, username, pingID string) error {
	return clearIfEqual.Run(ctx, c.client, []string{c.key(username)}, pingID).Err()
}
