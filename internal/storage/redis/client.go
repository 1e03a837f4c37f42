package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Hit — INCR с выставлением EXPIRE на первом инкременте окна.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	n, err := c.cli.Incr(ctx, "win:"+key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n == 1 {
		c.cli.Expire(ctx, "win:"+key, window)
	}
	ttl, err := c.cli.TTL(ctx, "win:"+key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return n, time.Now().Add(ttl), nil
}

func (c *Client) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	n, err := c.cli.Get(ctx, "win:"+key).Int64()
	if err == redis.Nil {
		return 0, time.Now().Add(window), nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	ttl, err := c.cli.TTL(ctx, "win:"+key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return n, time.Now().Add(ttl), nil
}

func (c *Client) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.cli.SetNX(ctx, "mark:"+key, 1, ttl).Result()
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.cli.Del(ctx, "mark:"+key).Err()
}
