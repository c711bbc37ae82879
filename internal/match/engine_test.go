package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/game"
	"sudooom.pong/internal/history"
	"sudooom.pong/internal/lease"
	imNats "sudooom.pong/internal/nats"
	"sudooom.pong/internal/protocol"
	"sudooom.pong/internal/room"
	"sudooom.pong/internal/session"
)

// recordingBroadcaster 记录广播的消息，panicOn 返回 true 时模拟广播故障
type recordingBroadcaster struct {
	mu      sync.Mutex
	msgs    []protocol.Outbound
	panicOn func(protocol.Outbound) bool
}

func (b *recordingBroadcaster) Broadcast(_ string, msg protocol.Outbound) int {
	if b.panicOn != nil && b.panicOn(msg) {
		panic("broadcast failed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return 1
}

func (b *recordingBroadcaster) snapshot() []protocol.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Outbound(nil), b.msgs...)
}

func (b *recordingBroadcaster) count(typ string) int {
	n := 0
	for _, m := range b.snapshot() {
		if m.Type() == typ {
			n++
		}
	}
	return n
}

type recordingForwarder struct {
	mu       sync.Mutex
	commands []imNats.Command
	nodes    []string
}

func (f *recordingForwarder) SendCommand(nodeID string, cmd imNats.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, nodeID)
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *recordingForwarder) sent() []imNats.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]imNats.Command(nil), f.commands...)
}

func newEngine(t *testing.T, registry *room.Registry, l lease.Lease, b Broadcaster, opts Options) *Engine {
	t.Helper()
	e := NewEngine(Deps{
		Registry:    registry,
		Lease:       l,
		Connections: connection.NewManager(),
		Broadcaster: b,
		Recorder:    history.NewMemoryRecorder(),
	}, opts)
	t.Cleanup(e.Shutdown)
	return e
}

// seedMatch 创建双方都已就位、球在运动中的房间
func seedMatch(t *testing.T, registry *room.Registry, code string, mutate func(s *game.State)) {
	t.Helper()
	ctx := context.Background()
	_, _, err := registry.Create(ctx, code)
	require.NoError(t, err)
	_, err = registry.Update(ctx, code, func(s *game.State) error {
		registry.Sessions().Assign(s, "u1", "alice")
		registry.Sessions().Assign(s, "u2", "bob")
		s.BallSpeedX, s.BallSpeedY = game.BallInitialSpeedX, 3
		s.IsPaused = false
		if mutate != nil {
			mutate(s)
		}
		return nil
	})
	require.NoError(t, err)
}

func newLocalRegistry() *room.Registry {
	return room.NewRegistry(nil, session.NewStore(), nil, room.Options{})
}

func TestLoop_FullThenDeltaFrames(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", nil)

	b := &recordingBroadcaster{}
	e := newEngine(t, registry, lease.NewLocal("node-a", time.Second), b, Options{TickRate: 120, FullStateEvery: 10})

	require.True(t, e.ensureLoop(context.Background(), "ABC123", 1))
	assert.True(t, e.Driving("ABC123"))
	// 重复启动不会创建第二个循环
	assert.True(t, e.ensureLoop(context.Background(), "ABC123", 2))
	assert.Equal(t, 1, e.ActiveLoops())

	require.Eventually(t, func() bool {
		return b.count(protocol.TypeGameStateDelta) >= 3 && b.count(protocol.TypeGameState) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	msgs := b.snapshot()
	first, ok := msgs[0].(protocol.GameState)
	require.True(t, ok, "first frame must be a full frame")
	assert.True(t, first.IsFullState)

	for _, m := range msgs {
		if d, ok := m.(protocol.StateDelta); ok {
			assert.NotContains(t, d.Fields, "timestamp")
			assert.NotEmpty(t, d.Fields)
		}
	}

	// 房间被删除后循环退出
	registry.Delete(context.Background(), "ABC123")
	require.Eventually(t, func() bool { return !e.Driving("ABC123") }, 2*time.Second, 10*time.Millisecond)
}

func TestLoop_PausedRoomSendsNoDeltas(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", func(s *game.State) { s.Pause() })

	b := &recordingBroadcaster{}
	e := newEngine(t, registry, lease.NewLocal("node-a", time.Second), b, Options{TickRate: 120, FullStateEvery: 1000})
	require.True(t, e.ensureLoop(context.Background(), "ABC123", 1))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.count(protocol.TypeGameState))
	assert.Zero(t, b.count(protocol.TypeGameStateDelta))
}

func TestLoop_WinnerFinishesAndRecords(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", func(s *game.State) {
		s.Player1Score = s.WinningScore - 1
		s.BallX, s.BallY = 770, 50
		s.BallSpeedX, s.BallSpeedY = 7, 1
	})

	b := &recordingBroadcaster{}
	rec := history.NewMemoryRecorder()
	e := NewEngine(Deps{
		Registry:    registry,
		Lease:       lease.NewLocal("node-a", time.Second),
		Connections: connection.NewManager(),
		Broadcaster: b,
		Recorder:    rec,
	}, Options{TickRate: 120})
	t.Cleanup(e.Shutdown)

	require.True(t, e.ensureLoop(context.Background(), "ABC123", 1))
	require.Eventually(t, func() bool { return !e.Driving("ABC123") }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, b.count(protocol.TypeGoalScored))
	assert.Equal(t, 1, b.count(protocol.TypeGameOver))

	msgs := b.snapshot()
	over, ok := msgs[len(msgs)-1].(protocol.GameOver)
	require.True(t, ok, "game_over must be the last broadcast")
	assert.Equal(t, 1, over.Winner)
	assert.Equal(t, game.WinningScore, over.Player1Score)

	state, err := registry.Get(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, game.StatusFinished, state.Status)
	assert.Equal(t, 1, rec.Len())

	// 已结束的房间不会再启动循环
	assert.False(t, e.ensureLoop(context.Background(), "ABC123", 1))
}

func TestLoop_PanicLeavesRoomPaused(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", nil)

	b := &recordingBroadcaster{panicOn: func(m protocol.Outbound) bool {
		_, ok := m.(protocol.GameState)
		return ok
	}}
	l := lease.NewLocal("node-a", time.Second)
	e := newEngine(t, registry, l, b, Options{TickRate: 120})

	require.True(t, e.ensureLoop(context.Background(), "ABC123", 1))
	require.Eventually(t, func() bool { return !e.Driving("ABC123") }, 2*time.Second, 10*time.Millisecond)

	state, err := registry.Get(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, state.IsPaused)
	assert.Equal(t, game.StatusOngoing, state.Status)

	holder, err := l.Holder(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Empty(t, holder, "lease released after fault")
}

func TestLoop_RequiresBothPlayers(t *testing.T) {
	registry := newLocalRegistry()
	_, _, err := registry.Create(context.Background(), "ABC123")
	require.NoError(t, err)

	e := newEngine(t, registry, lease.NewLocal("node-a", time.Second), &recordingBroadcaster{}, Options{})
	assert.False(t, e.ensureLoop(context.Background(), "ABC123", 1))
	assert.Zero(t, e.ActiveLoops())
}

func TestStopLoop_OnlyOwner(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", func(s *game.State) { s.Pause() })
	e := newEngine(t, registry, lease.NewLocal("node-a", time.Second), &recordingBroadcaster{}, Options{TickRate: 120})

	require.True(t, e.ensureLoop(context.Background(), "ABC123", 7))
	e.stopLoop("ABC123", 8)
	assert.True(t, e.Driving("ABC123"))

	e.handoffLoop("ABC123", 7, 8)
	e.stopLoop("ABC123", 8)
	assert.False(t, e.Driving("ABC123"))
}

// 两个节点共享 Redis：同一时刻只有一个节点驱动房间
func TestLoop_ExclusiveAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := room.NewRedisCache(client)
	registryA := room.NewRegistry(cache, session.NewStore(), nil, room.Options{})
	registryB := room.NewRegistry(cache, session.NewStore(), nil, room.Options{})
	seedMatch(t, registryA, "ABC123", func(s *game.State) { s.Pause() })

	nodeA := NewEngine(Deps{
		Registry:    registryA,
		Lease:       lease.NewRedis(client, "node-a", 3*time.Second),
		Connections: connection.NewManager(),
		Broadcaster: &recordingBroadcaster{},
	}, Options{TickRate: 60})
	nodeB := newEngine(t, registryB, lease.NewRedis(client, "node-b", 3*time.Second), &recordingBroadcaster{}, Options{TickRate: 60})

	ctx := context.Background()
	require.True(t, nodeA.ensureLoop(ctx, "ABC123", 1))
	assert.False(t, nodeB.ensureLoop(ctx, "ABC123", 1))
	assert.False(t, nodeB.Driving("ABC123"))

	holder, ok := nodeB.remoteHolder(ctx, "ABC123")
	assert.False(t, ok, "no forwarder configured")
	assert.Empty(t, holder)

	// A 退出后释放租约，B 接手
	nodeA.Shutdown()
	assert.True(t, nodeB.ensureLoop(ctx, "ABC123", 1))
	assert.True(t, nodeB.Driving("ABC123"))
}

func TestHandleCommand(t *testing.T) {
	registry := newLocalRegistry()
	seedMatch(t, registry, "ABC123", func(s *game.State) { s.Pause() })
	b := &recordingBroadcaster{}
	e := newEngine(t, registry, lease.NewLocal("node-a", time.Second), b, Options{})
	ctx := context.Background()

	e.HandleCommand(ctx, imNats.Command{
		Origin:       "node-b",
		RoomCode:     "ABC123",
		PlayerID:     "u1",
		PlayerNumber: 1,
		Payload:      []byte(`{"type":"key_event","key":"ArrowUp","is_down":true,"player_number":1}`),
	})
	state, err := registry.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, state.Player1MovingUp)

	// 槽位与玩家不符的转发输入被忽略
	e.HandleCommand(ctx, imNats.Command{
		RoomCode:     "ABC123",
		PlayerID:     "intruder",
		PlayerNumber: 2,
		Payload:      []byte(`{"type":"key_event","key":"s","is_down":true,"player_number":2}`),
	})
	state, _ = registry.Get(ctx, "ABC123")
	assert.False(t, state.Player2MovingDown)

	e.HandleCommand(ctx, imNats.Command{
		RoomCode:     "ABC123",
		PlayerID:     "u2",
		PlayerNumber: 2,
		Payload:      []byte(`{"type":"pause_game"}`),
	})
	assert.Equal(t, 1, b.count(protocol.TypeGamePaused))

	e.HandleCommand(ctx, imNats.Command{RoomCode: "ABC123", PlayerNumber: 1, Payload: []byte(`{bad`)})
}

func TestApplyKey(t *testing.T) {
	s := game.NewState("ABC123")

	applyKey(s, 1, "w", true)
	applyKey(s, 1, "arrowdown", true)
	assert.True(t, s.Player1MovingUp)
	assert.True(t, s.Player1MovingDown)

	applyKey(s, 1, "w", false)
	assert.False(t, s.Player1MovingUp)
	assert.True(t, s.Player1MovingDown)

	applyKey(s, 2, "arrowup", true)
	applyKey(s, 2, "space", true)
	assert.True(t, s.Player2MovingUp)
	assert.False(t, s.Player2MovingDown)
}
