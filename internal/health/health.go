package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	NodeID      string `json:"node_id"`
	NATS        string `json:"nats"`
	Redis       string `json:"redis"`
	Database    string `json:"database"`
	Connections int    `json:"connections"`
	ActiveLoops int    `json:"active_loops"`
}

// Healthy 已配置的依赖都可用；未配置的依赖不影响结果
func (s *Status) Healthy() bool {
	for _, state := range []string{s.NATS, s.Redis, s.Database} {
		if state == StateDisconnected {
			return false
		}
	}
	return true
}

// ConnectionCounter 连接计数器接口
type ConnectionCounter interface {
	Count() int
}

// LoopCounter 本节点正在驱动的对局数
type LoopCounter interface {
	ActiveLoops() int
}

// Checker 健康检查器，nats/redis/db 为 nil 表示未配置
type Checker struct {
	nodeID      string
	nc          *nats.Conn
	redisClient redis.UniversalClient
	db          *pgxpool.Pool
	conns       ConnectionCounter
	loops       LoopCounter
}

// NewChecker 创建健康检查器
func NewChecker(nodeID string, nc *nats.Conn, redisClient redis.UniversalClient, db *pgxpool.Pool, conns ConnectionCounter, loops LoopCounter) *Checker {
	return &Checker{
		nodeID:      nodeID,
		nc:          nc,
		redisClient: redisClient,
		db:          db,
		conns:       conns,
		loops:       loops,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service:  "pong",
		NodeID:   h.nodeID,
		NATS:     StateNotConfigured,
		Redis:    StateNotConfigured,
		Database: StateNotConfigured,
	}

	if h.nc != nil {
		status.NATS = StateDisconnected
		if h.nc.IsConnected() {
			status.NATS = StateConnected
		}
	}

	if h.redisClient != nil {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		status.Redis = StateDisconnected
		if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
			status.Redis = StateConnected
		}
	}

	if h.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		status.Database = StateDisconnected
		if err := h.db.Ping(dbCtx); err == nil {
			status.Database = StateConnected
		}
	}

	if h.conns != nil {
		status.Connections = h.conns.Count()
	}
	if h.loops != nil {
		status.ActiveLoops = h.loops.ActiveLoops()
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Ready 就绪探针
func (h *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	if h.IsHealthy(r.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready"))
}

// Mux 健康检查路由：/health 与 /ready
func (h *Checker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.HandleFunc("/ready", h.Ready)
	return mux
}
