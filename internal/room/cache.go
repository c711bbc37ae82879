package room

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 对局快照的共享存储，多个进程通过它看到同一份房间状态
type Cache interface {
	Get(ctx context.Context, roomCode string) ([]byte, error)
	Set(ctx context.Context, roomCode string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, roomCode string) error
	Exists(ctx context.Context, roomCode string) (bool, error)
}

// RedisCache 基于 Redis 的快照缓存
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache 创建 Redis 快照缓存
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get 读取快照，不存在时返回 ErrCacheMiss
func (c *RedisCache) Get(ctx context.Context, roomCode string) ([]byte, error) {
	data, err := c.client.Get(ctx, BuildGameKey(roomCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Set 写入快照并设置过期时间
func (c *RedisCache) Set(ctx context.Context, roomCode string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, BuildGameKey(roomCode), data, ttl).Err()
}

// Del 删除快照
func (c *RedisCache) Del(ctx context.Context, roomCode string) error {
	return c.client.Del(ctx, BuildGameKey(roomCode)).Err()
}

// Exists 快照是否存在
func (c *RedisCache) Exists(ctx context.Context, roomCode string) (bool, error) {
	n, err := c.client.Exists(ctx, BuildGameKey(roomCode)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
