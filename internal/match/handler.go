package match

import (
	"context"
	"time"

	"sudooom.pong/internal/auth"
	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/game"
	"sudooom.pong/internal/protocol"
	"sudooom.pong/internal/session"
)

// connState 连接状态：CONNECTING → JOINED → (PLAYING | SPECTATING) → CLOSED
type connState int

const (
	stateConnecting connState = iota
	stateJoined
	statePlaying
	stateSpectating
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "CONNECTING"
	case stateJoined:
		return "JOINED"
	case statePlaying:
		return "PLAYING"
	case stateSpectating:
		return "SPECTATING"
	}
	return "CLOSED"
}

// client 单条连接的协议状态，只在该连接的读协程中访问
type client struct {
	conn     *connection.Connection
	roomCode string
	identity auth.Identity
	state    connState

	playerID string
	username string
	slot     int
}

// player 是否占有槽位
func (c *client) player() bool {
	return c.state == statePlaying && c.slot != session.Spectator
}

// owns 声明的槽位必须与分配的槽位一致
func (c *client) owns(claimed int) bool {
	return c.player() && claimed == c.slot
}

// mayControl 暂停/恢复可以不带槽位，带了就必须一致
func (c *client) mayControl(claimed int) bool {
	return c.player() && (claimed == 0 || claimed == c.slot)
}

// Serve 处理一条 websocket 连接，阻塞直到连接断开
// identity 为已验证身份或访客身份，join_game 中的 player_id 只对访客生效
func (e *Engine) Serve(ctx context.Context, conn *connection.Connection, roomCode string, identity auth.Identity) {
	c := &client{
		conn:     conn,
		roomCode: roomCode,
		identity: identity,
		state:    stateConnecting,
	}

	conn.Bind(roomCode, "", "", session.Spectator)
	e.conns.Add(conn)
	e.conns.BindRoom(conn.ID(), roomCode)

	if state, err := e.registry.Get(ctx, roomCode); err == nil {
		_ = conn.SendMessage(protocol.FullState(state.Snapshot()))
	}

	e.logger.Info("Connection opened", "roomCode", roomCode, "connId", conn.ID(), "guest", identity.Guest)

	if err := conn.ReadLoop(func(data []byte) {
		e.handleMessage(ctx, c, data)
	}); err != nil {
		e.logger.Debug("Connection read ended", "roomCode", roomCode, "connId", conn.ID(), "error", err)
	}

	e.disconnect(c)
}

func (e *Engine) handleMessage(ctx context.Context, c *client, data []byte) {
	c.conn.UpdateActive()

	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		_ = c.conn.SendMessage(protocol.Error{Message: protocol.ErrorText(err)})
		return
	}

	if c.playerID != "" {
		e.sessions.Touch(c.roomCode, c.playerID)
	}

	switch m := msg.(type) {
	case protocol.JoinGame:
		e.handleJoin(ctx, c, m)
	case protocol.KeyEvent:
		if c.owns(m.PlayerNumber) {
			e.dispatch(ctx, c.input(m), data)
		}
	case protocol.PaddlePosition:
		if c.owns(m.PlayerNumber) {
			e.handlePaddle(ctx, c, m, data)
		}
	case protocol.PauseGame:
		if c.mayControl(m.PlayerNumber) {
			e.dispatch(ctx, c.input(m), data)
		}
	case protocol.ResumeGame:
		if c.mayControl(m.PlayerNumber) {
			e.dispatch(ctx, c.input(m), data)
		}
	case protocol.Ping:
		_ = c.conn.SendMessage(protocol.PongReply{
			ClientTimestamp: m.Timestamp,
			ServerTime:      protocol.NowMillis(),
		})
	case protocol.Pong:
	case protocol.Prediction:
		e.logger.Debug("Client prediction",
			"roomCode", c.roomCode,
			"playerId", c.playerID,
			"sequence", m.Sequence)
	}
}

func (c *client) input(msg protocol.Inbound) input {
	return input{
		roomCode: c.roomCode,
		playerID: c.playerID,
		slot:     c.slot,
		owner:    c.conn.ID(),
		msg:      msg,
	}
}

// resolveIdentity 访客可以在 join_game 中自带身份
func (c *client) resolveIdentity(m protocol.JoinGame) auth.Identity {
	id := c.identity
	if !id.Guest {
		return id
	}
	if m.PlayerID != "" {
		return auth.Identity{PlayerID: m.PlayerID, Username: m.Username, Guest: true}
	}
	if m.Username != "" {
		id.Username = m.Username
	}
	return id
}

func (e *Engine) handleJoin(ctx context.Context, c *client, m protocol.JoinGame) {
	id := c.resolveIdentity(m)
	code := c.roomCode

	if _, created, err := e.registry.Create(ctx, code); err != nil {
		_ = c.conn.SendMessage(protocol.Error{Message: "Failed to create room"})
		return
	} else if !created && !e.Driving(code) {
		// 其他节点可能刚修改过房间
		_, _ = e.registry.Reload(ctx, code)
	}

	var (
		slot int
		name string
	)
	state, err := e.registry.Update(ctx, code, func(s *game.State) error {
		slot, name = e.sessions.Assign(s, id.PlayerID, id.Username)
		return nil
	})
	if err != nil {
		_ = c.conn.SendMessage(protocol.Error{Message: "Room not found"})
		return
	}

	c.state = stateJoined
	c.playerID, c.username, c.slot = id.PlayerID, name, slot
	c.conn.Bind(code, id.PlayerID, name, slot)
	if slot == session.Spectator {
		c.state = stateSpectating
	} else {
		c.state = statePlaying
	}

	e.logger.Info("Player joined",
		"roomCode", code,
		"playerId", id.PlayerID,
		"playerNumber", slot,
		"state", c.state.String())

	e.broadcaster.Broadcast(code, protocol.PlayerJoined{
		PlayerNumber: slot,
		PlayerID:     id.PlayerID,
		Username:     name,
		Timestamp:    protocol.NowMillis(),
	})
	e.broadcaster.Broadcast(code, protocol.FullState(state.Snapshot()))

	if slot != session.Spectator && state.BothSlotsFilled() && state.Status != game.StatusFinished {
		e.ensureLoop(ctx, code, c.conn.ID())
	}
}

// handlePaddle 应用挡板位置并回 input_ack
// 序号落后于已确认序号的位置不再应用，直接要求客户端以服务端为准
func (e *Engine) handlePaddle(ctx context.Context, c *client, m protocol.PaddlePosition, raw []byte) {
	latest := e.sessions.AckSequence(c.roomCode, c.playerID, m.Sequence)

	ack := protocol.InputAck{Sequence: m.Sequence, Timestamp: protocol.NowMillis()}
	if latest > m.Sequence {
		state, err := e.registry.Get(ctx, c.roomCode)
		if err != nil {
			return
		}
		ack.Position = state.PaddleY(c.slot)
		ack.ForceReconcile = true
		_ = c.conn.SendMessage(ack)
		return
	}

	state, remote := e.dispatch(ctx, c.input(m), raw)
	if state == nil {
		return
	}
	if remote {
		ack.Position = state.ClampPaddle(*m.Position)
	} else {
		ack.Position = state.PaddleY(c.slot)
	}
	ack.ForceReconcile = state.NearPaddlePlane(c.slot, e.opts.ReconcileRange)
	_ = c.conn.SendMessage(ack)
}

// disconnect 连接断开：停止本连接启动的循环，标记会话断开，暂停进行中的对局
func (e *Engine) disconnect(c *client) {
	wasPlayer := c.player()
	c.state = stateClosed
	e.conns.Remove(c.conn.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 同一玩家已经从新连接重新加入，旧连接断开不影响对局
	if c.playerID != "" {
		if other := e.otherConnection(c); other != nil {
			e.handoffLoop(c.roomCode, c.conn.ID(), other.ID())
			e.logger.Info("Stale connection closed", "roomCode", c.roomCode, "playerId", c.playerID)
			return
		}
	}

	e.stopLoop(c.roomCode, c.conn.ID())

	if !wasPlayer {
		e.logger.Info("Connection closed", "roomCode", c.roomCode, "connId", c.conn.ID())
		return
	}

	e.sessions.MarkDisconnected(c.roomCode, c.playerID)
	e.broadcaster.Broadcast(c.roomCode, protocol.PlayerLeft{
		PlayerNumber: c.slot,
		PlayerID:     c.playerID,
		Username:     c.username,
		Timestamp:    protocol.NowMillis(),
	})

	state, err := e.registry.Get(ctx, c.roomCode)
	if err == nil && state.Status == game.StatusOngoing && !state.IsPaused {
		in := input{roomCode: c.roomCode, playerID: c.playerID, slot: c.slot, msg: protocol.PauseGame{PlayerNumber: c.slot}}
		raw, _ := protocol.Encode(in.msg)
		e.dispatch(ctx, in, raw)
	}

	e.logger.Info("Player disconnected",
		"roomCode", c.roomCode,
		"playerId", c.playerID,
		"playerNumber", c.slot)
}

func (e *Engine) otherConnection(c *client) *connection.Connection {
	for _, conn := range e.conns.RoomConnections(c.roomCode) {
		if conn.ID() != c.conn.ID() && conn.PlayerID() == c.playerID {
			return conn
		}
	}
	return nil
}

// handoffLoop 把循环的归属转给同一玩家的新连接
func (e *Engine) handoffLoop(roomCode string, from, to int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.loops[roomCode]; ok && l.owner == from {
		l.owner = to
	}
}
