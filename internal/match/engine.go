package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/history"
	"sudooom.pong/internal/lease"
	imNats "sudooom.pong/internal/nats"
	"sudooom.pong/internal/protocol"
	"sudooom.pong/internal/room"
	"sudooom.pong/internal/session"
)

// Broadcaster 向房间内全部连接（包括其他节点上的连接）广播
type Broadcaster interface {
	Broadcast(roomCode string, msg protocol.Outbound) int
}

// Forwarder 把输入转发给租约持有节点
type Forwarder interface {
	SendCommand(nodeID string, cmd imNats.Command) error
}

// Options 对局参数
type Options struct {
	TickRate       int
	FullStateEvery int
	DeltaDeadband  int
	ReconcileRange float64
}

func (o *Options) withDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = 30
	}
	if o.FullStateEvery <= 0 {
		o.FullStateEvery = 90
	}
	if o.DeltaDeadband < 0 {
		o.DeltaDeadband = 0
	}
	if o.ReconcileRange <= 0 {
		o.ReconcileRange = 30
	}
}

func (o Options) frameDuration() time.Duration {
	return time.Second / time.Duration(o.TickRate)
}

// Deps 引擎依赖，全部显式注入
type Deps struct {
	Registry    *room.Registry
	Lease       lease.Lease
	Connections *connection.Manager
	Broadcaster Broadcaster
	// Forwarder 为 nil 时单节点运行，所有输入在本节点执行
	Forwarder Forwarder
	Recorder  history.Recorder
}

// Engine 对局引擎：处理连接上的协议消息，并为持有租约的房间驱动 tick 循环
type Engine struct {
	registry    *room.Registry
	sessions    *session.Store
	lease       lease.Lease
	conns       *connection.Manager
	broadcaster Broadcaster
	forwarder   Forwarder
	recorder    history.Recorder
	opts        Options

	mu    sync.Mutex
	loops map[string]*loop // roomCode -> 本节点驱动的循环

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewEngine 创建对局引擎
func NewEngine(deps Deps, opts Options) *Engine {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry:    deps.Registry,
		sessions:    deps.Registry.Sessions(),
		lease:       deps.Lease,
		conns:       deps.Connections,
		broadcaster: deps.Broadcaster,
		forwarder:   deps.Forwarder,
		recorder:    deps.Recorder,
		opts:        opts,
		loops:       make(map[string]*loop),
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default().With("component", "MatchEngine"),
	}
}

// NodeID 本节点 ID
func (e *Engine) NodeID() string {
	return e.lease.NodeID()
}

// ActiveLoops 本节点正在驱动的房间数
func (e *Engine) ActiveLoops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loops)
}

// Driving 本节点是否正在驱动该房间
func (e *Engine) Driving(roomCode string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loops[roomCode]
	return ok
}

// Shutdown 停止全部 tick 循环并释放租约
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
	e.logger.Info("Match engine stopped")
}
