package match

import (
	"context"
	"errors"
	"time"

	"sudooom.pong/internal/game"
	"sudooom.pong/internal/history"
	"sudooom.pong/internal/lease"
	"sudooom.pong/internal/protocol"
	"sudooom.pong/internal/room"
)

var (
	errFinished = errors.New("match finished")
	errIdle     = errors.New("match idle")
)

// loop 本节点驱动的单个房间的 tick 循环
type loop struct {
	roomCode string
	owner    int64 // 启动循环的连接，断开时循环随之停止
	cancel   context.CancelFunc
	done     chan struct{}

	last  *game.Snapshot // 上一次广播的帧
	ticks int
}

// ensureLoop 获取房间租约并启动 tick 循环
// 本节点已在驱动时直接返回 true；租约被其他节点持有时返回 false
func (e *Engine) ensureLoop(ctx context.Context, roomCode string, owner int64) bool {
	e.mu.Lock()
	if _, ok := e.loops[roomCode]; ok {
		e.mu.Unlock()
		return true
	}
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return false
	}
	loopCtx, cancel := context.WithCancel(e.ctx)
	l := &loop{roomCode: roomCode, owner: owner, cancel: cancel, done: make(chan struct{})}
	// 先占位，避免并发 join 重复获取租约
	e.loops[roomCode] = l
	e.wg.Add(1)
	e.mu.Unlock()

	abort := func(release bool) bool {
		if release {
			e.releaseLease(roomCode)
		}
		cancel()
		e.removeLoop(l)
		close(l.done)
		e.wg.Done()
		return false
	}

	ok, err := e.lease.Acquire(ctx, roomCode)
	if err != nil {
		e.logger.Warn("Failed to acquire room lease", "roomCode", roomCode, "error", err)
		return abort(false)
	}
	if !ok {
		holder, _ := e.lease.Holder(ctx, roomCode)
		e.logger.Info("Room is driven by another node", "roomCode", roomCode, "holder", holder)
		return abort(false)
	}

	// 从共享缓存继续，其他节点可能在本节点之后修改过状态
	state, err := e.registry.Reload(ctx, roomCode)
	if err != nil || state.Status == game.StatusFinished || !state.BothSlotsFilled() {
		return abort(true)
	}

	go e.run(loopCtx, l)
	e.logger.Info("Game loop started", "roomCode", roomCode, "nodeId", e.NodeID(), "owner", owner)
	return true
}

// stopLoop 停止由指定连接启动的循环，owner 为 0 时无条件停止
func (e *Engine) stopLoop(roomCode string, owner int64) {
	e.mu.Lock()
	l, ok := e.loops[roomCode]
	owned := ok && (owner == 0 || l.owner == owner)
	e.mu.Unlock()
	if !owned {
		return
	}
	l.cancel()
	<-l.done
}

func (e *Engine) removeLoop(l *loop) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loops[l.roomCode] == l {
		delete(e.loops, l.roomCode)
	}
}

func (e *Engine) releaseLease(roomCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.lease.Release(ctx, roomCode); err != nil {
		e.logger.Warn("Failed to release room lease", "roomCode", roomCode, "error", err)
	}
}

// run tick 循环主体
func (e *Engine) run(ctx context.Context, l *loop) {
	keepAliveDone := make(chan struct{})
	go func() {
		defer close(keepAliveDone)
		lease.KeepAlive(ctx, e.lease, l.roomCode, l.cancel)
	}()

	defer func() {
		l.cancel()
		<-keepAliveDone
		e.releaseLease(l.roomCode)
		e.removeLoop(l)
		close(l.done)
		e.wg.Done()
		e.logger.Info("Game loop stopped", "roomCode", l.roomCode, "ticks", l.ticks)
	}()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Game loop panic recovered, pausing room",
				"roomCode", l.roomCode,
				"panic", r)
			e.pauseAfterFault(l.roomCode)
		}
	}()

	frame := e.opts.frameDuration()
	timer := time.NewTimer(frame)
	defer timer.Stop()

	for {
		start := time.Now()
		if e.step(ctx, l) {
			return
		}

		sleep := frame - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// step 推进一帧，返回 true 表示循环应结束
func (e *Engine) step(ctx context.Context, l *loop) bool {
	var (
		scorer, winner int
		snap           game.Snapshot
		final          *game.State
	)

	_, err := e.registry.Update(ctx, l.roomCode, func(s *game.State) error {
		if s.Status == game.StatusFinished {
			return errFinished
		}
		if s.IsPaused || s.Status != game.StatusOngoing {
			snap = s.Snapshot()
			return errIdle
		}
		scorer = s.Update()
		winner = s.CheckForWinner()
		snap = s.Snapshot()
		if winner != 0 {
			final = s.Clone()
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errIdle):
	case errors.Is(err, errFinished), errors.Is(err, room.ErrRoomNotFound):
		return true
	default:
		e.logger.Error("Game loop update failed", "roomCode", l.roomCode, "error", err)
		return true
	}

	// 租约在本帧内丢失，不再广播
	if ctx.Err() != nil {
		return true
	}

	if scorer != 0 {
		e.broadcaster.Broadcast(l.roomCode, protocol.GoalScored{
			Scorer:          scorer,
			Player1Score:    snap.Player1Score,
			Player2Score:    snap.Player2Score,
			Player1Username: snap.Player1Username,
			Player2Username: snap.Player2Username,
			Timestamp:       protocol.NowMillis(),
		})
	}

	if winner != 0 {
		e.finish(l, winner, snap, final)
		return true
	}

	e.broadcastFrame(l, snap)
	return false
}

// broadcastFrame 首帧和每 FullStateEvery 帧发整帧，其余只发变化的字段
func (e *Engine) broadcastFrame(l *loop, snap game.Snapshot) {
	l.ticks++

	if l.last == nil || l.ticks%e.opts.FullStateEvery == 0 {
		e.broadcaster.Broadcast(l.roomCode, protocol.FullState(snap))
		l.last = &snap
		return
	}

	delta := game.Delta(*l.last, snap)
	if len(delta) > e.opts.DeltaDeadband {
		e.broadcaster.Broadcast(l.roomCode, protocol.StateDelta{Fields: delta})
		l.last = &snap
	}
}

// finish 广播终局并记录结果
func (e *Engine) finish(l *loop, winner int, snap game.Snapshot, final *game.State) {
	e.broadcaster.Broadcast(l.roomCode, protocol.FullState(snap))
	e.broadcaster.Broadcast(l.roomCode, protocol.GameOver{
		Winner:          winner,
		Player1Score:    snap.Player1Score,
		Player2Score:    snap.Player2Score,
		Player1Username: snap.Player1Username,
		Player2Username: snap.Player2Username,
		Timestamp:       protocol.NowMillis(),
	})

	e.logger.Info("Game over",
		"roomCode", l.roomCode,
		"winner", winner,
		"player1Score", snap.Player1Score,
		"player2Score", snap.Player2Score)

	if e.recorder != nil && final != nil {
		if err := e.recorder.Record(context.Background(), history.FromState(final)); err != nil {
			e.logger.Error("Failed to record match result", "roomCode", l.roomCode, "error", err)
		}
	}
}

// pauseAfterFault 循环异常退出后让房间保持暂停
func (e *Engine) pauseAfterFault(roomCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.registry.Update(ctx, roomCode, func(s *game.State) error {
		if s.Status == game.StatusFinished {
			return errFinished
		}
		s.Pause()
		return nil
	})
	if err != nil && !errors.Is(err, errFinished) {
		e.logger.Error("Failed to pause room after fault", "roomCode", roomCode, "error", err)
	}
}
