package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-balance-backend/internal/features/user/models"
	rplatform "crypto-balance-backend/internal/platform/redis"
)

// UserCache provides Redis-based caching for user records. Entries are
// short-lived and invalidated on every balance mutation.
type UserCache struct {
	client *rplatform.Client
	ttl    time.Duration
}

func NewUserCache(client *rplatform.Client, ttl time.Duration) *UserCache {
	return &UserCache{client: client, ttl: ttl}
}

func (c *UserCache) key(id int64) string { return fmt.Sprintf("user:id:%d", id) }

func (c *UserCache) Set(ctx context.Context, u *models.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(u.UserID), b, c.ttl).Err()
}

func (c *UserCache) GetByID(ctx context.Context, id int64) (*models.User, error) {
	v, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *UserCache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
