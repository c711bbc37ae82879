package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed    = errors.New("invalid JSON format")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// ErrorText 把解码错误转换为下发给客户端的提示
func ErrorText(err error) string {
	var typeErr *unknownTypeError
	switch {
	case errors.As(err, &typeErr):
		return "Unknown message type: " + typeErr.typ
	case errors.Is(err, ErrMalformed):
		return "Invalid JSON format"
	case errors.Is(err, ErrMissingField):
		return "Missing required field: " + strings.TrimPrefix(err.Error(), ErrMissingField.Error()+": ")
	}
	return "Invalid message"
}

type unknownTypeError struct {
	typ string
}

func (e *unknownTypeError) Error() string { return ErrUnknownType.Error() + ": " + e.typ }
func (e *unknownTypeError) Unwrap() error { return ErrUnknownType }

// Inbound 客户端发来的消息，每种类型一个结构体
type Inbound interface {
	Type() string
}

// JoinGame 加入对局
// PlayerID/Username 只在连接未携带有效令牌时生效
type JoinGame struct {
	PlayerID string `json:"player_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// KeyEvent 服务端模拟模式下的按键
type KeyEvent struct {
	Key          string `json:"key"`
	IsDown       bool   `json:"is_down"`
	PlayerNumber int    `json:"player_number"`
}

// PaddlePosition 客户端权威的挡板位置
type PaddlePosition struct {
	PlayerNumber int      `json:"player_number"`
	Position     *float64 `json:"position"`
	Sequence     int64    `json:"sequence"`
	Timestamp    float64  `json:"timestamp,omitempty"`
}

// PauseGame 暂停
type PauseGame struct {
	PlayerNumber int `json:"player_number,omitempty"`
}

// ResumeGame 恢复，可携带发球速度
type ResumeGame struct {
	PlayerNumber int      `json:"player_number,omitempty"`
	BallSpeedX   *float64 `json:"ball_speed_x,omitempty"`
	BallSpeedY   *float64 `json:"ball_speed_y,omitempty"`
}

// Ping 延迟探测
type Ping struct {
	Timestamp float64 `json:"timestamp"`
}

// Pong 客户端对服务端 ping 的回应，仅作记录
type Pong struct {
	Timestamp float64 `json:"timestamp"`
}

// Prediction 客户端预测上报，仅作记录
type Prediction struct {
	Sequence  int64   `json:"sequence"`
	BallX     float64 `json:"ball_x"`
	BallY     float64 `json:"ball_y"`
	Timestamp float64 `json:"timestamp"`
}

func (JoinGame) Type() string       { return TypeJoinGame }
func (KeyEvent) Type() string       { return TypeKeyEvent }
func (PaddlePosition) Type() string { return TypePaddlePosition }
func (PauseGame) Type() string      { return TypePauseGame }
func (ResumeGame) Type() string     { return TypeResumeGame }
func (Ping) Type() string           { return TypePing }
func (Pong) Type() string           { return TypePong }
func (Prediction) Type() string     { return TypePrediction }

// NormalizedKey 统一按键名大小写
func (k KeyEvent) NormalizedKey() string {
	return strings.ToLower(k.Key)
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound 解析入站消息，只解码一次
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformed
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case TypeJoinGame:
		msg, err = decodeAs[JoinGame](data)
	case TypeKeyEvent:
		msg, err = decodeAs[KeyEvent](data)
	case TypePaddlePosition:
		var p PaddlePosition
		if p, err = decodeAs[PaddlePosition](data); err == nil && p.Position == nil {
			return nil, fmt.Errorf("%w: position", ErrMissingField)
		}
		msg = p
	case TypePauseGame:
		msg, err = decodeAs[PauseGame](data)
	case TypeResumeGame:
		msg, err = decodeAs[ResumeGame](data)
	case TypePing:
		msg, err = decodeAs[Ping](data)
	case TypePong:
		msg, err = decodeAs[Pong](data)
	case TypePrediction:
		msg, err = decodeAs[Prediction](data)
	default:
		return nil, &unknownTypeError{typ: env.Type}
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, ErrMalformed
	}
	return v, nil
}
