package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsync_redis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const lockExpiry = 10 * time.Second

type Client struct {
	Client *redis.Client
	Lock   *redsync.Redsync
}

func NewClient(addr string) *Client {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	pool := redsync_redis.NewPool(client)
	RedSyncLock := redsync.New(pool)

	return &Client{
		Client: client,
		Lock:   RedSyncLock,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the distributed mutex called name.
func (c *Client) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	mutex := c.Lock.NewMutex(name, redsync.WithExpiry(lockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	defer mutex.UnlockContext(context.WithoutCancel(ctx))

	return fn(ctx)
}

func (c *Client) Close() error {
	return c.Client.Close()
}
