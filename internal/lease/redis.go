package lease

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix 房间租约 Redis Key 前缀
	KeyPrefix = "pong:lease:"
)

// BuildLeaseKey 构建房间租约 Key
// Key: pong:lease:{roomCode}, Value: 持有者节点 ID
func BuildLeaseKey(roomCode string) string {
	return KeyPrefix + roomCode
}

// 只有值等于本节点 ID 时才续期/删除，避免误操作他人的租约
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Redis 基于 Redis SET NX PX 的租约
type Redis struct {
	client redis.UniversalClient
	nodeID string
	ttl    time.Duration
}

// NewRedis 创建 Redis 租约
func NewRedis(client redis.UniversalClient, nodeID string, ttl time.Duration) *Redis {
	return &Redis{client: client, nodeID: nodeID, ttl: ttl}
}

// Acquire 获取租约
func (l *Redis) Acquire(ctx context.Context, roomCode string) (bool, error) {
	ok, err := l.client.SetNX(ctx, BuildLeaseKey(roomCode), l.nodeID, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// 已被本节点持有（例如重连后重新启动循环）
	return l.Renew(ctx, roomCode)
}

// Renew 续期
func (l *Redis) Renew(ctx context.Context, roomCode string) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{BuildLeaseKey(roomCode)}, l.nodeID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release 释放租约
func (l *Redis) Release(ctx context.Context, roomCode string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{BuildLeaseKey(roomCode)}, l.nodeID).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Holder 当前持有者
func (l *Redis) Holder(ctx context.Context, roomCode string) (string, error) {
	holder, err := l.client.Get(ctx, BuildLeaseKey(roomCode)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

// NodeID 本节点 ID
func (l *Redis) NodeID() string { return l.nodeID }

// TTL 租约有效期
func (l *Redis) TTL() time.Duration { return l.ttl }
