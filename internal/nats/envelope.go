package nats

import "encoding/json"

// RoomEvent 跨节点转发的房间事件
// Payload 是已编码的出站消息，原样下发给各节点上的连接
type RoomEvent struct {
	Origin   string          `json:"origin"`
	RoomCode string          `json:"roomCode"`
	Payload  json.RawMessage `json:"payload"`
}

// Command 非持有节点转发给租约持有节点的输入
// Payload 是客户端原始入站消息
type Command struct {
	Origin       string          `json:"origin"`
	RoomCode     string          `json:"roomCode"`
	PlayerID     string          `json:"playerId"`
	PlayerNumber int             `json:"playerNumber"`
	Payload      json.RawMessage `json:"payload"`
}
