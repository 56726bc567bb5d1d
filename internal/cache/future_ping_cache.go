package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wellping/internal/model"
)

// FuturePingQueue is the per-participant FIFO of follow-up streams.
type FuturePingQueue interface {
	Enqueue(ctx context.Context, username string, entries ...model.FuturePing) error
	// DequeueIfAny pops the head of the queue if its AfterDate is not after
	// now. It returns (nil, nil) when the queue is empty or the head is not
	// due yet.
	DequeueIfAny(ctx context.Context, username string, now time.Time) (*model.FuturePing, error)
	List(ctx context.Context, username string) ([]model.FuturePing, error)
	Len(ctx context.Context, username string) (int64, error)
}

type futurePingQueue struct {
	client *redis.Client
}

func NewFuturePingQueue(client *redis.Client) FuturePingQueue {
	return &futurePingQueue{client: client}
}

func (c *futurePingQueue) key(username string) string {
	return fmt.Sprintf("user:%s:futurePings", username)
}

func (c *futurePingQueue) Enqueue(ctx context.Context, username string, entries ...model.FuturePing) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]interface{}, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		args[i] = data
	}
	return c.client.RPush(ctx, c.key(username), args...).Err()
}

func (c *futurePingQueue) DequeueIfAny(ctx context.Context, username string, now time.Time) (*model.FuturePing, error) {
	key := c.key(username)
	var popped *model.FuturePing

	// The head is checked and popped in one transaction so two pings
	// started at once cannot consume the same entry.
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		head, err := tx.LIndex(ctx, key, 0).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var entry model.FuturePing
		if err := json.Unmarshal(head, &entry); err != nil {
			return fmt.Errorf("failed to decode future ping: %w", err)
		}
		if entry.AfterDate.After(now) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPop(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		popped = &entry
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return popped, nil
}

func (c *futurePingQueue) List(ctx context.Context, username string) ([]model.FuturePing, error) {
	items, err := c.client.LRange(ctx, c.key(username), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.FuturePing, 0, len(items))
	for _, item := range items {
		var entry model.FuturePing
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode future ping: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (c *futurePingQueue) Len(ctx context.Context, username string) (int64, error) {
	return c.client.LLen(ctx, c.key(username)).Result()
}
