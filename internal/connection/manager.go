package connection

import (
	"log/slog"
	"sync"

	"sudooom.pong/internal/protocol"
)

// Manager 管理本进程的全部连接，并按房间分组
type Manager struct {
	connections map[int64]*Connection
	roomConns   map[string]map[int64]*Connection // roomCode -> connID -> Connection
	mu          sync.RWMutex
	logger      *slog.Logger
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Connection),
		roomConns:   make(map[string]map[int64]*Connection),
		logger:      slog.Default().With("component", "ConnectionManager"),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove 移除连接及其房间分组
func (m *Manager) Remove(connID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	delete(m.connections, connID)

	if code := conn.RoomCode(); code != "" {
		if conns, ok := m.roomConns[code]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.roomConns, code)
			}
		}
	}
}

func (m *Manager) Get(connID int64) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// BindRoom 把连接加入房间分组
func (m *Manager) BindRoom(connID int64, roomCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	if _, ok := m.roomConns[roomCode]; !ok {
		m.roomConns[roomCode] = make(map[int64]*Connection)
	}
	m.roomConns[roomCode][connID] = conn
}

// RoomConnections 房间内的连接
func (m *Manager) RoomConnections(roomCode string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.roomConns[roomCode]))
	for _, conn := range m.roomConns[roomCode] {
		conns = append(conns, conn)
	}
	return conns
}

// RoomCount 房间内的连接数
func (m *Manager) RoomCount(roomCode string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.roomConns[roomCode])
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// BroadcastRoom 向房间内全部连接发送消息，返回成功投递数
// player_joined 按接收方填写 is_you，其余消息只编码一次
func (m *Manager) BroadcastRoom(roomCode string, msg protocol.Outbound) int {
	conns := m.RoomConnections(roomCode)
	if len(conns) == 0 {
		return 0
	}

	if joined, ok := msg.(protocol.PlayerJoined); ok {
		sent := 0
		for _, conn := range conns {
			personal := joined
			personal.IsYou = conn.PlayerID() == joined.PlayerID
			if err := conn.SendMessage(personal); err == nil {
				sent++
			}
		}
		return sent
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error("Failed to encode broadcast", "roomCode", roomCode, "type", msg.Type(), "error", err)
		return 0
	}

	sent := 0
	for _, conn := range conns {
		if err := conn.Send(data); err == nil {
			sent++
		}
	}
	return sent
}

// GetAllConnections 返回所有连接（用于心跳检测）
func (m *Manager) GetAllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}

// CloseAll 关闭全部连接（进程退出时调用）
func (m *Manager) CloseAll() {
	for _, conn := range m.GetAllConnections() {
		conn.Close()
	}
}

// DeliverRoom 投递其他节点转发的已编码消息
func (m *Manager) DeliverRoom(roomCode string, payload []byte) int {
	if msg, err := protocol.DecodeOutbound(payload); err == nil {
		if joined, ok := msg.(protocol.PlayerJoined); ok {
			return m.BroadcastRoom(roomCode, joined)
		}
	}

	sent := 0
	for _, conn := range m.RoomConnections(roomCode) {
		if err := conn.Send(payload); err == nil {
			sent++
		}
	}
	return sent
}
