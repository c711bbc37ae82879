package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotHeld 租约不由当前节点持有
var ErrNotHeld = errors.New("lease not held by this node")

// Lease 房间租约
// 同一时刻一个房间只有一个节点持有租约，只有持有者运行该房间的 tick 循环
type Lease interface {
	// Acquire 尝试获取租约，已由本节点持有时视为成功并续期
	Acquire(ctx context.Context, roomCode string) (bool, error)
	// Renew 续期，租约已被他人持有或已过期时返回 false
	Renew(ctx context.Context, roomCode string) (bool, error)
	// Release 释放本节点持有的租约，不会删除他人的租约
	Release(ctx context.Context, roomCode string) error
	// Holder 当前持有者节点 ID，无人持有返回空
	Holder(ctx context.Context, roomCode string) (string, error)
	// NodeID 本节点 ID
	NodeID() string
	// TTL 租约有效期
	TTL() time.Duration
}

// KeepAlive 每 ttl/3 续期一次，阻塞直到 ctx 取消
// 租约被他人抢走，或连续续期失败超过 ttl（租约必然已过期）时调用 onLost 并返回
func KeepAlive(ctx context.Context, l Lease, roomCode string, onLost func()) {
	logger := slog.Default().With("component", "LeaseKeeper")

	ttl := l.TTL()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Renew(ctx, roomCode)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Failed to renew room lease",
					"roomCode", roomCode,
					"nodeId", l.NodeID(),
					"error", err)
				if time.Since(lastRenewed) < ttl {
					continue
				}
				ok = false
			}
			if !ok {
				logger.Warn("Room lease lost", "roomCode", roomCode, "nodeId", l.NodeID())
				if onLost != nil {
					onLost()
				}
				return
			}
			lastRenewed = time.Now()
		}
	}
}
