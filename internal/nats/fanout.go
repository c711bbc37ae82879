package nats

import (
	"log/slog"

	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/protocol"
)

// RoomPublisher 房间事件发布接口
type RoomPublisher interface {
	PublishRoomEvent(roomCode string, msg protocol.Outbound) error
}

// Fanout 房间广播：先投递本节点连接，再发布给其他节点
// publisher 为 nil 时只做本地投递
type Fanout struct {
	local     *connection.Manager
	publisher RoomPublisher
	logger    *slog.Logger
}

// NewFanout 创建房间广播器
func NewFanout(local *connection.Manager, publisher RoomPublisher) *Fanout {
	return &Fanout{
		local:     local,
		publisher: publisher,
		logger:    slog.Default().With("component", "Fanout"),
	}
}

// Broadcast 广播房间消息，返回本节点投递成功数
func (f *Fanout) Broadcast(roomCode string, msg protocol.Outbound) int {
	sent := f.local.BroadcastRoom(roomCode, msg)
	if f.publisher != nil {
		if err := f.publisher.PublishRoomEvent(roomCode, msg); err != nil {
			f.logger.Warn("Failed to fan out room event", "roomCode", roomCode, "type", msg.Type(), "error", err)
		}
	}
	return sent
}

// HandleRoomEvent 实现 MessageHandler 的房间事件部分
func (f *Fanout) HandleRoomEvent(roomCode string, payload []byte) {
	f.local.DeliverRoom(roomCode, payload)
}
