package lease

import (
	"context"
	"sync"
	"time"
)

type holding struct {
	nodeID    string
	expiresAt time.Time
}

// table 进程内租约表，可被多个 Local 共享
type table struct {
	mu     sync.Mutex
	leases map[string]holding
}

// Local 进程内租约，未配置 Redis 时使用
type Local struct {
	table  *table
	nodeID string
	ttl    time.Duration
	now    func() time.Time
}

// NewLocal 创建进程内租约
func NewLocal(nodeID string, ttl time.Duration) *Local {
	return &Local{
		table:  &table{leases: make(map[string]holding)},
		nodeID: nodeID,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithNode 共享同一张租约表的另一个节点视图
func (l *Local) WithNode(nodeID string) *Local {
	return &Local{table: l.table, nodeID: nodeID, ttl: l.ttl, now: l.now}
}

// Acquire 获取租约
func (l *Local) Acquire(_ context.Context, roomCode string) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	now := l.now()
	h, ok := l.table.leases[roomCode]
	if ok && h.nodeID != l.nodeID && now.Before(h.expiresAt) {
		return false, nil
	}
	l.table.leases[roomCode] = holding{nodeID: l.nodeID, expiresAt: now.Add(l.ttl)}
	return true, nil
}

// Renew 续期
func (l *Local) Renew(_ context.Context, roomCode string) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	now := l.now()
	h, ok := l.table.leases[roomCode]
	if !ok || h.nodeID != l.nodeID || !now.Before(h.expiresAt) {
		return false, nil
	}
	h.expiresAt = now.Add(l.ttl)
	l.table.leases[roomCode] = h
	return true, nil
}

// Release 释放租约
func (l *Local) Release(_ context.Context, roomCode string) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	h, ok := l.table.leases[roomCode]
	if !ok || h.nodeID != l.nodeID {
		return ErrNotHeld
	}
	delete(l.table.leases, roomCode)
	return nil
}

// Holder 当前持有者
func (l *Local) Holder(_ context.Context, roomCode string) (string, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	h, ok := l.table.leases[roomCode]
	if !ok || !l.now().Before(h.expiresAt) {
		return "", nil
	}
	return h.nodeID, nil
}

// NodeID 本节点 ID
func (l *Local) NodeID() string { return l.nodeID }

// TTL 租约有效期
func (l *Local) TTL() time.Duration { return l.ttl }
