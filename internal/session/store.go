package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sudooom.pong/internal/game"
)

// Spectator 观战者槽位标记，从不作为槽位保存
const Spectator = 0

// Session 玩家在某个房间内的连接状态
type Session struct {
	RoomCode       string
	PlayerID       string
	Username       string
	PlayerNumber   int
	Connected      bool
	LastActive     time.Time
	DisconnectTime time.Time

	// 客户端输入序号与服务端已确认序号
	ClientSequence  int64
	LastAckSequence int64
}

type key struct {
	roomCode string
	playerID string
}

// Store 玩家会话存储
// 以 (房间码, 玩家 ID) 为键，由房间持有，随房间一起删除
type Store struct {
	mu       sync.RWMutex
	sessions map[key]*Session
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore 创建会话存储
func NewStore() *Store {
	return &Store{
		sessions: make(map[key]*Session),
		now:      time.Now,
		logger:   slog.Default().With("component", "SessionStore"),
	}
}

// Assign 分配玩家槽位
//
// 已有会话的玩家（重连）保持原槽位；对局状态里已记录该玩家（由其他进程分配）
// 时按记录恢复会话；否则依次占用 1 号、2 号槽位，两个槽位都满时对局
// 进入 ONGOING；房间已满或已结束时返回 Spectator。
// 调用方必须持有该房间的锁。
func (s *Store) Assign(state *game.State, playerID, username string) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{roomCode: state.RoomCode, playerID: playerID}
	now := s.now()

	if sess, ok := s.sessions[k]; ok && state.SlotOf(playerID) == sess.PlayerNumber {
		sess.connect(now)
		s.logger.Info("Player reconnected",
			"roomCode", state.RoomCode,
			"playerId", playerID,
			"playerNumber", sess.PlayerNumber)
		return sess.PlayerNumber, sess.Username
	}

	if slot := state.SlotOf(playerID); slot != 0 {
		name := usernameForSlot(state, slot)
		s.sessions[k] = newSession(state.RoomCode, playerID, name, slot, now)
		s.logger.Info("Restored session from room state",
			"roomCode", state.RoomCode,
			"playerId", playerID,
			"playerNumber", slot)
		return slot, name
	}

	if state.Status == game.StatusFinished {
		return Spectator, spectatorName(username)
	}

	slot := Spectator
	switch {
	case state.Player1ID == "":
		slot = 1
	case state.Player2ID == "":
		slot = 2
	default:
		s.logger.Info("Room is full, joining as spectator",
			"roomCode", state.RoomCode,
			"playerId", playerID)
		return Spectator, spectatorName(username)
	}

	if username == "" {
		username = fmt.Sprintf("Player-%d", slot)
	}
	state.SetPlayer(slot, playerID, username)
	if state.BothSlotsFilled() {
		state.SetStatus(game.StatusOngoing)
	}
	s.sessions[k] = newSession(state.RoomCode, playerID, username, slot, now)

	s.logger.Info("Assigned player slot",
		"roomCode", state.RoomCode,
		"playerId", playerID,
		"playerNumber", slot)
	return slot, username
}

func newSession(roomCode, playerID, username string, slot int, now time.Time) *Session {
	return &Session{
		RoomCode:     roomCode,
		PlayerID:     playerID,
		Username:     username,
		PlayerNumber: slot,
		Connected:    true,
		LastActive:   now,
	}
}

func usernameForSlot(state *game.State, slot int) string {
	name := state.Player1Username
	if slot == 2 {
		name = state.Player2Username
	}
	if name == "" {
		name = fmt.Sprintf("Player-%d", slot)
	}
	return name
}

func spectatorName(username string) string {
	if username == "" {
		return "Spectator"
	}
	return username
}

// Get 获取会话副本
func (s *Store) Get(roomCode, playerID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key{roomCode: roomCode, playerID: playerID}]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// MarkConnected 标记玩家在线
func (s *Store) MarkConnected(roomCode, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key{roomCode: roomCode, playerID: playerID}]
	if !ok {
		return false
	}
	sess.connect(s.now())
	return true
}

// connect 新连接的客户端输入序号从 0 开始，旧的确认序号随之清零
func (sess *Session) connect(now time.Time) {
	sess.Connected = true
	sess.LastActive = now
	sess.DisconnectTime = time.Time{}
	sess.ClientSequence = 0
	sess.LastAckSequence = 0
}

// MarkDisconnected 标记玩家离线，不释放槽位
func (s *Store) MarkDisconnected(roomCode, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key{roomCode: roomCode, playerID: playerID}]
	if !ok {
		return false
	}
	now := s.now()
	sess.Connected = false
	sess.LastActive = now
	sess.DisconnectTime = now
	sess.ClientSequence = 0
	sess.LastAckSequence = 0
	return true
}

// Touch 刷新最后活跃时间
func (s *Store) Touch(roomCode, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key{roomCode: roomCode, playerID: playerID}]; ok {
		sess.LastActive = s.now()
	}
}

// TimeDisconnected 离线时长，在线时为 0
func (s *Store) TimeDisconnected(sess Session) time.Duration {
	if sess.Connected || sess.DisconnectTime.IsZero() {
		return 0
	}
	return s.now().Sub(sess.DisconnectTime)
}

// AckSequence 记录客户端输入序号，返回已确认的最大序号
// 序号回退（乱序到达）时保持原确认值
func (s *Store) AckSequence(roomCode, playerID string, seq int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key{roomCode: roomCode, playerID: playerID}]
	if !ok {
		return seq
	}
	if seq > sess.ClientSequence {
		sess.ClientSequence = seq
	}
	if seq > sess.LastAckSequence {
		sess.LastAckSequence = seq
	}
	return sess.LastAckSequence
}

// ConnectedCount 房间内在线会话数
func (s *Store) ConnectedCount(roomCode string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k, sess := range s.sessions {
		if k.roomCode == roomCode && sess.Connected {
			n++
		}
	}
	return n
}

// RoomSessions 房间内的全部会话，按槽位排序
func (s *Store) RoomSessions(roomCode string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []Session
	for k, sess := range s.sessions {
		if k.roomCode == roomCode {
			list = append(list, *sess)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PlayerNumber < list[j].PlayerNumber })
	return list
}

// DeleteRoom 删除房间的全部会话
func (s *Store) DeleteRoom(roomCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.sessions {
		if k.roomCode == roomCode {
			delete(s.sessions, k)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Deleted room sessions", "roomCode", roomCode, "count", removed)
	}
	return removed
}
