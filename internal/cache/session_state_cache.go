package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

// SessionStateCache keeps the resumable state of in-progress pings.
type SessionStateCache interface {
	StoreSessionState(ctx context.Context, pingID string, state *model.SessionState) error
	// LoadSessionState returns (nil, nil) when nothing is stored and a
	// malformed-state error when the stored value cannot be decoded.
	LoadSessionState(ctx context.Context, pingID string) (*model.SessionState, error)
	DeleteSessionState(ctx context.Context, pingID string) error
}

type sessionStateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStateCache creates a session state cache. States expire after
// ttl without writes.
func NewSessionStateCache(client *redis.Client, ttl time.Duration) SessionStateCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &sessionStateCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *sessionStateCache) key(pingID string) string {
	return fmt.Sprintf("ping:%s:state", pingID)
}

func (c *sessionStateCache) StoreSessionState(ctx context.Context, pingID string, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(pingID), data, c.ttl).Err()
}

func (c *sessionStateCache) LoadSessionState(ctx context.Context, pingID string) (*model.SessionState, error) {
	data, err := c.client.Get(ctx, c.key(pingID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperror.NewMalformedStateError(pingID, err)
	}
	if state.Answers == nil {
		state.Answers = model.AnswersList{}
	}
	return &state, nil
}

func (c *sessionStateCache) DeleteSessionState(ctx context.Context, pingID string) error {
	return c.client.Del(ctx, c.key(pingID)).Err()
}
