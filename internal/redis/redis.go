package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movievault/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

var errNotInitialized = errors.New("redis client not initialized")

const pingTimeout = 3 * time.Second

// ScoredMember is a sorted set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// NewRedisClient creates the redis client from app config and pings it.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", host, port, err)
	}
	return &Client{inner: client}, nil
}

// ZAdd inserts or re-scores member in the sorted set key.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRange returns every member of key with its score, lowest score first.
func (c *Client) ZRange(ctx context.Context, key string) ([]ScoredMember, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	zs, err := c.inner.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

// ZRem removes members from key.
func (c *Client) ZRem(ctx context.Context, key string, members ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.inner.ZRem(ctx, key, args...).Err()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Ping(ctx).Err()
}

// Alive pings with a short deadline so /healthz reports a lost Redis.
func (c *Client) Alive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.Ping(ctx) == nil
}

func (c *Client) String() string { return "redis" }

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
