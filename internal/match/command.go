package match

import (
	"context"
	"errors"

	"sudooom.pong/internal/game"
	imNats "sudooom.pong/internal/nats"
	"sudooom.pong/internal/protocol"
)

var errNotYourSlot = errors.New("slot not held by player")

// input 一条已通过授权检查的玩家输入
type input struct {
	roomCode string
	playerID string
	slot     int
	owner    int64 // 发起连接，转发来的输入为 0
	msg      protocol.Inbound
}

// dispatch 在本节点执行输入，或转发给正在驱动该房间的节点
// 返回执行后的房间状态；转发时返回从缓存刷新的状态，remote 为 true
func (e *Engine) dispatch(ctx context.Context, in input, raw []byte) (state *game.State, remote bool) {
	if holder, ok := e.remoteHolder(ctx, in.roomCode); ok {
		err := e.forwarder.SendCommand(holder, imNats.Command{
			RoomCode:     in.roomCode,
			PlayerID:     in.playerID,
			PlayerNumber: in.slot,
			Payload:      raw,
		})
		if err == nil {
			state, err := e.registry.Reload(ctx, in.roomCode)
			if err != nil {
				return nil, true
			}
			return state, true
		}
		e.logger.Warn("Forwarding failed, applying locally", "roomCode", in.roomCode, "holder", holder, "error", err)
	}
	return e.apply(ctx, in), false
}

// remoteHolder 房间由其他节点驱动时返回该节点 ID
func (e *Engine) remoteHolder(ctx context.Context, roomCode string) (string, bool) {
	if e.forwarder == nil || e.Driving(roomCode) {
		return "", false
	}
	holder, err := e.lease.Holder(ctx, roomCode)
	if err != nil || holder == "" || holder == e.NodeID() {
		return "", false
	}
	return holder, true
}

// mutate 修改房间状态；本节点未驱动该房间时先从缓存刷新
func (e *Engine) mutate(ctx context.Context, roomCode string, fn func(*game.State) error) (*game.State, error) {
	if !e.Driving(roomCode) {
		_, _ = e.registry.Reload(ctx, roomCode)
	}
	return e.registry.Update(ctx, roomCode, fn)
}

// apply 在本节点执行输入
func (e *Engine) apply(ctx context.Context, in input) *game.State {
	owned := func(fn func(*game.State)) func(*game.State) error {
		return func(s *game.State) error {
			if s.PlayerID(in.slot) != in.playerID {
				return errNotYourSlot
			}
			fn(s)
			return nil
		}
	}

	var (
		state *game.State
		err   error
	)
	switch m := in.msg.(type) {
	case protocol.KeyEvent:
		state, err = e.mutate(ctx, in.roomCode, owned(func(s *game.State) {
			applyKey(s, in.slot, m.NormalizedKey(), m.IsDown)
		}))

	case protocol.PaddlePosition:
		if m.Position == nil {
			return nil
		}
		state, err = e.mutate(ctx, in.roomCode, owned(func(s *game.State) {
			s.SetPaddle(in.slot, *m.Position)
		}))

	case protocol.PauseGame:
		state, err = e.mutate(ctx, in.roomCode, owned(func(s *game.State) {
			if s.Status != game.StatusFinished {
				s.Pause()
			}
		}))
		if err == nil {
			e.broadcaster.Broadcast(in.roomCode, protocol.GamePaused{
				PlayerNumber: in.slot,
				Timestamp:    protocol.NowMillis(),
			})
		}

	case protocol.ResumeGame:
		state, err = e.mutate(ctx, in.roomCode, owned(func(s *game.State) {
			s.Resume(m.BallSpeedX, m.BallSpeedY)
		}))
		if err == nil && state.Status == game.StatusOngoing {
			e.broadcaster.Broadcast(in.roomCode, protocol.GameResumed{
				PlayerNumber: in.slot,
				BallSpeedX:   state.BallSpeedX,
				BallSpeedY:   state.BallSpeedY,
				Timestamp:    protocol.NowMillis(),
			})
			if state.BothSlotsFilled() && state.Status == game.StatusOngoing {
				e.ensureLoop(ctx, in.roomCode, in.owner)
			}
		}

	default:
		return nil
	}

	if err != nil {
		if !errors.Is(err, errNotYourSlot) {
			e.logger.Warn("Failed to apply input",
				"roomCode", in.roomCode,
				"playerId", in.playerID,
				"type", in.msg.Type(),
				"error", err)
		}
		return nil
	}
	return state
}

// applyKey w/ArrowUp 控制向上，s/ArrowDown 控制向下
func applyKey(s *game.State, slot int, key string, isDown bool) {
	up, down := s.Player1MovingUp, s.Player1MovingDown
	if slot == 2 {
		up, down = s.Player2MovingUp, s.Player2MovingDown
	}
	switch key {
	case "w", "arrowup":
		up = isDown
	case "s", "arrowdown":
		down = isDown
	default:
		return
	}
	s.SetMovement(slot, up, down)
}

// HandleCommand 执行其他节点转发来的输入
func (e *Engine) HandleCommand(ctx context.Context, cmd imNats.Command) {
	msg, err := protocol.DecodeInbound(cmd.Payload)
	if err != nil {
		e.logger.Warn("Dropping malformed forwarded command", "roomCode", cmd.RoomCode, "origin", cmd.Origin, "error", err)
		return
	}
	if cmd.PlayerNumber != 1 && cmd.PlayerNumber != 2 {
		return
	}

	e.apply(ctx, input{
		roomCode: cmd.RoomCode,
		playerID: cmd.PlayerID,
		slot:     cmd.PlayerNumber,
		msg:      msg,
	})
}
