package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"sudooom.pong/internal/game"
)

// Outbound 服务端下发的消息
type Outbound interface {
	Type() string
}

// GameState 整帧状态
type GameState struct {
	game.Snapshot
	IsFullState bool `json:"is_full_state"`
}

// StateDelta 增量状态，只包含变化的字段
type StateDelta struct {
	Fields map[string]any
}

// PlayerJoined 玩家加入，IsYou 按接收方分别填写
type PlayerJoined struct {
	PlayerNumber int    `json:"player_number"`
	PlayerID     string `json:"player_id"`
	Username     string `json:"username"`
	IsYou        bool   `json:"is_you"`
	Timestamp    int64  `json:"timestamp"`
}

// PlayerLeft 玩家断开
type PlayerLeft struct {
	PlayerNumber int    `json:"player_number"`
	PlayerID     string `json:"player_id"`
	Username     string `json:"username"`
	Timestamp    int64  `json:"timestamp"`
}

// GoalScored 得分
type GoalScored struct {
	Scorer          int    `json:"scorer"`
	Player1Score    int    `json:"player_1_score"`
	Player2Score    int    `json:"player_2_score"`
	Player1Username string `json:"player_1_username"`
	Player2Username string `json:"player_2_username"`
	Timestamp       int64  `json:"timestamp"`
}

// GameOver 对局结束
type GameOver struct {
	Winner          int    `json:"winner"`
	Player1Score    int    `json:"player_1_score"`
	Player2Score    int    `json:"player_2_score"`
	Player1Username string `json:"player_1_username"`
	Player2Username string `json:"player_2_username"`
	Timestamp       int64  `json:"timestamp"`
}

// GamePaused 暂停
type GamePaused struct {
	PlayerNumber int   `json:"player_number"`
	Timestamp    int64 `json:"timestamp"`
}

// GameResumed 恢复
type GameResumed struct {
	PlayerNumber int     `json:"player_number"`
	BallSpeedX   float64 `json:"ball_speed_x"`
	BallSpeedY   float64 `json:"ball_speed_y"`
	Timestamp    int64   `json:"timestamp"`
}

// InputAck 挡板位置确认
type InputAck struct {
	Sequence       int64   `json:"sequence"`
	Position       float64 `json:"position"`
	ForceReconcile bool    `json:"force_reconcile"`
	Timestamp      int64   `json:"timestamp"`
}

// Error 错误提示，连接保持打开
type Error struct {
	Message string `json:"message"`
}

// PongReply 对客户端 ping 的回应
type PongReply struct {
	ClientTimestamp float64 `json:"client_timestamp"`
	ServerTime      int64   `json:"server_time"`
}

func (GameState) Type() string    { return TypeGameState }
func (StateDelta) Type() string   { return TypeGameStateDelta }
func (PlayerJoined) Type() string { return TypePlayerJoined }
func (PlayerLeft) Type() string   { return TypePlayerLeft }
func (GoalScored) Type() string   { return TypeGoalScored }
func (GameOver) Type() string     { return TypeGameOver }
func (GamePaused) Type() string   { return TypeGamePaused }
func (GameResumed) Type() string  { return TypeGameResumed }
func (InputAck) Type() string     { return TypeInputAck }
func (Error) Type() string        { return TypeError }
func (PongReply) Type() string    { return TypePong }

// NowMillis 消息时间戳（毫秒）
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FullState 由快照构造整帧消息
func FullState(snap game.Snapshot) GameState {
	return GameState{Snapshot: snap, IsFullState: true}
}

// Encode 编码出站消息，在 JSON 对象头部写入 type 字段
func Encode(msg Outbound) ([]byte, error) {
	if d, ok := msg.(StateDelta); ok {
		fields := make(map[string]any, len(d.Fields)+2)
		for k, v := range d.Fields {
			fields[k] = v
		}
		fields["type"] = TypeGameStateDelta
		fields["is_full_state"] = false
		return json.Marshal(fields)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: not a JSON object", msg.Type())
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(msg.Type()) + 12)
	buf.WriteString(`{"type":`)
	typ, _ := json.Marshal(msg.Type())
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// DecodeOutbound 解析出站消息，用于跨节点转发和测试
func DecodeOutbound(data []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformed
	}

	switch env.Type {
	case TypeGameState:
		return decodeAs[GameState](data)
	case TypeGameStateDelta:
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, ErrMalformed
		}
		delete(fields, "type")
		delete(fields, "is_full_state")
		return StateDelta{Fields: fields}, nil
	case TypePlayerJoined:
		return decodeAs[PlayerJoined](data)
	case TypePlayerLeft:
		return decodeAs[PlayerLeft](data)
	case TypeGoalScored:
		return decodeAs[GoalScored](data)
	case TypeGameOver:
		return decodeAs[GameOver](data)
	case TypeGamePaused:
		return decodeAs[GamePaused](data)
	case TypeGameResumed:
		return decodeAs[GameResumed](data)
	case TypeInputAck:
		return decodeAs[InputAck](data)
	case TypeError:
		return decodeAs[Error](data)
	case TypePong:
		return decodeAs[PongReply](data)
	}
	return nil, &unknownTypeError{typ: env.Type}
}
