package connection

import (
	"context"
	"log/slog"
	"time"
)

// TimeoutReason 连接被回收的原因
type TimeoutReason string

const (
	// ReasonJoinTimeout 升级后迟迟没有 join_game
	ReasonJoinTimeout TimeoutReason = "join_timeout"
	// ReasonIdle 已加入房间但长时间没有消息和 pong
	ReasonIdle TimeoutReason = "idle"
)

// HeartbeatPolicy 回收策略
type HeartbeatPolicy struct {
	IdleTimeout   time.Duration
	JoinTimeout   time.Duration
	CheckInterval time.Duration
}

func (p *HeartbeatPolicy) withDefaults() {
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = 90 * time.Second
	}
	if p.JoinTimeout <= 0 {
		p.JoinTimeout = 30 * time.Second
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = 30 * time.Second
	}
}

// HeartbeatChecker 连接回收
// 读超时只能发现不再回 pong 的连接；一直回 pong 却从不加入房间的连接由这里回收
type HeartbeatChecker struct {
	manager   *Manager
	policy    HeartbeatPolicy
	logger    *slog.Logger
	onTimeout func(conn *Connection, reason TimeoutReason)
}

// NewHeartbeatChecker 创建连接回收器
func NewHeartbeatChecker(manager *Manager, policy HeartbeatPolicy, onTimeout func(conn *Connection, reason TimeoutReason)) *HeartbeatChecker {
	policy.withDefaults()
	return &HeartbeatChecker{
		manager:   manager,
		policy:    policy,
		logger:    slog.Default().With("component", "HeartbeatChecker"),
		onTimeout: onTimeout,
	}
}

// Start 按间隔检查，阻塞直到 ctx 取消
func (h *HeartbeatChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.policy.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Check(now)
		}
	}
}

// reason 返回应回收的原因，不需要回收时返回空
func (h *HeartbeatChecker) reason(conn *Connection, now time.Time) TimeoutReason {
	if conn.PlayerID() == "" {
		if now.Sub(conn.CreateTime()) > h.policy.JoinTimeout {
			return ReasonJoinTimeout
		}
		return ""
	}
	if now.Sub(conn.LastActiveTime()) > h.policy.IdleTimeout {
		return ReasonIdle
	}
	return ""
}

// Check 关闭应回收的连接，返回关闭数量
// 连接从管理器移除后，对应的读协程会照常走断线流程（标记离线、暂停对局）
func (h *HeartbeatChecker) Check(now time.Time) int {
	perRoom := make(map[string]int)
	closed := 0

	for _, conn := range h.manager.GetAllConnections() {
		reason := h.reason(conn, now)
		if reason == "" {
			continue
		}
		closed++
		perRoom[conn.RoomCode()]++

		if h.onTimeout != nil {
			h.onTimeout(conn, reason)
		}
		conn.Close()
		h.manager.Remove(conn.ID())
	}

	if closed > 0 {
		h.logger.Info("Reclaimed connections", "closed", closed, "rooms", perRoom)
	}
	return closed
}
