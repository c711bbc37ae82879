package nats

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.pong/internal/protocol"
)

// MessagePublisher 消息发布器
type MessagePublisher struct {
	nc     *nats.Conn
	nodeID string
	logger *slog.Logger
}

// NewMessagePublisher 创建消息发布器
func NewMessagePublisher(nc *nats.Conn, nodeID string) *MessagePublisher {
	return &MessagePublisher{
		nc:     nc,
		nodeID: nodeID,
		logger: slog.Default().With("component", "NATSPublisher"),
	}
}

// PublishRoomEvent 发布房间事件，其他节点转发给各自的连接
func (p *MessagePublisher) PublishRoomEvent(roomCode string, msg protocol.Outbound) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(RoomEvent{Origin: p.nodeID, RoomCode: roomCode, Payload: payload})
	if err != nil {
		return err
	}

	subject := BuildRoomEventsSubject(roomCode)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish room event", "roomCode", roomCode, "type", msg.Type(), "error", err)
		return err
	}
	return nil
}

// SendCommand 把输入转发给租约持有节点
func (p *MessagePublisher) SendCommand(nodeID string, cmd Command) error {
	cmd.Origin = p.nodeID
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	if err := p.nc.Publish(BuildNodeCommandSubject(nodeID), data); err != nil {
		p.logger.Error("Failed to forward command", "nodeId", nodeID, "roomCode", cmd.RoomCode, "error", err)
		return err
	}

	p.logger.Debug("Forwarded command", "nodeId", nodeID, "roomCode", cmd.RoomCode, "playerId", cmd.PlayerID)
	return nil
}

// NodeID 本节点 ID
func (p *MessagePublisher) NodeID() string {
	return p.nodeID
}
