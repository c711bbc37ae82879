package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// SchemaVersion 当前快照格式版本
const SchemaVersion = 1

var (
	ErrMissingField      = errors.New("snapshot: missing field")
	ErrUnknownField      = errors.New("snapshot: unknown field")
	ErrUnsupportedSchema = errors.New("snapshot: unsupported schema version")
	ErrInvalidSnapshot   = errors.New("snapshot: invalid content")
)

// DecodeMode 反序列化模式
type DecodeMode int

const (
	// Lenient 生产模式：缺失字段取默认值，忽略未知字段
	Lenient DecodeMode = iota
	// Strict 测试模式：缺失或未知字段直接报错
	Strict
)

// Snapshot 对局状态的线上/缓存表示
// 同时用于 game_state 整帧下发和 Redis 缓存
type Snapshot struct {
	SchemaVersion int    `json:"schema_version"`
	RoomCode      string `json:"room_code"`
	Status        Status `json:"status"`
	IsPaused      bool   `json:"is_paused"`

	Player1ID       *string `json:"player_1_id"`
	Player2ID       *string `json:"player_2_id"`
	Player1Username string  `json:"player_1_username"`
	Player2Username string  `json:"player_2_username"`

	Player1Score int `json:"player_1_score"`
	Player2Score int `json:"player_2_score"`
	WinningScore int `json:"winning_score"`

	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
	PaddleWidth  float64 `json:"paddle_width"`
	PaddleHeight float64 `json:"paddle_height"`
	PaddleSpeed  float64 `json:"paddle_speed"`

	Player1PaddleY float64 `json:"player_1_paddle_y"`
	Player2PaddleY float64 `json:"player_2_paddle_y"`

	BallX      float64 `json:"ball_x"`
	BallY      float64 `json:"ball_y"`
	BallSize   float64 `json:"ball_size"`
	BallSpeedX float64 `json:"ball_speed_x"`
	BallSpeedY float64 `json:"ball_speed_y"`

	LastLoser *int `json:"last_loser"`

	Player1MovingUp   bool `json:"player_1_moving_up"`
	Player1MovingDown bool `json:"player_1_moving_down"`
	Player2MovingUp   bool `json:"player_2_moving_up"`
	Player2MovingDown bool `json:"player_2_moving_down"`

	CreatedAt  int64 `json:"created_at"`
	StartedAt  int64 `json:"started_at"`
	FinishedAt int64 `json:"finished_at"`
	Timestamp  int64 `json:"timestamp"`
}

// Snapshot 生成当前状态的快照
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		SchemaVersion:     SchemaVersion,
		RoomCode:          s.RoomCode,
		Status:            s.Status,
		IsPaused:          s.IsPaused,
		Player1ID:         optString(s.Player1ID),
		Player2ID:         optString(s.Player2ID),
		Player1Username:   s.Player1Username,
		Player2Username:   s.Player2Username,
		Player1Score:      s.Player1Score,
		Player2Score:      s.Player2Score,
		WinningScore:      s.WinningScore,
		CanvasWidth:       s.CanvasWidth,
		CanvasHeight:      s.CanvasHeight,
		PaddleWidth:       s.PaddleWidth,
		PaddleHeight:      s.PaddleHeight,
		PaddleSpeed:       s.PaddleSpeed,
		Player1PaddleY:    s.Player1PaddleY,
		Player2PaddleY:    s.Player2PaddleY,
		BallX:             s.BallX,
		BallY:             s.BallY,
		BallSize:          s.BallSize,
		BallSpeedX:        s.BallSpeedX,
		BallSpeedY:        s.BallSpeedY,
		Player1MovingUp:   s.Player1MovingUp,
		Player1MovingDown: s.Player1MovingDown,
		Player2MovingUp:   s.Player2MovingUp,
		Player2MovingDown: s.Player2MovingDown,
		CreatedAt:         unixMilli(s.CreatedAt),
		StartedAt:         unixMilli(s.StartedAt),
		FinishedAt:        unixMilli(s.FinishedAt),
		Timestamp:         time.Now().UnixMilli(),
	}
	if s.LastLoser != 0 {
		loser := s.LastLoser
		snap.LastLoser = &loser
	}
	return snap
}

// State 从快照还原对局状态
func (snap Snapshot) State() *State {
	s := &State{
		RoomCode:          snap.RoomCode,
		Status:            snap.Status,
		IsPaused:          snap.IsPaused,
		Player1Username:   snap.Player1Username,
		Player2Username:   snap.Player2Username,
		Player1Score:      snap.Player1Score,
		Player2Score:      snap.Player2Score,
		WinningScore:      snap.WinningScore,
		CanvasWidth:       snap.CanvasWidth,
		CanvasHeight:      snap.CanvasHeight,
		PaddleWidth:       snap.PaddleWidth,
		PaddleHeight:      snap.PaddleHeight,
		PaddleSpeed:       snap.PaddleSpeed,
		Player1PaddleY:    snap.Player1PaddleY,
		Player2PaddleY:    snap.Player2PaddleY,
		BallX:             snap.BallX,
		BallY:             snap.BallY,
		BallSize:          snap.BallSize,
		BallSpeedX:        snap.BallSpeedX,
		BallSpeedY:        snap.BallSpeedY,
		Player1MovingUp:   snap.Player1MovingUp,
		Player1MovingDown: snap.Player1MovingDown,
		Player2MovingUp:   snap.Player2MovingUp,
		Player2MovingDown: snap.Player2MovingDown,
		CreatedAt:         fromUnixMilli(snap.CreatedAt),
		StartedAt:         fromUnixMilli(snap.StartedAt),
		FinishedAt:        fromUnixMilli(snap.FinishedAt),
	}
	if snap.Player1ID != nil {
		s.Player1ID = *snap.Player1ID
	}
	if snap.Player2ID != nil {
		s.Player2ID = *snap.Player2ID
	}
	if snap.LastLoser != nil {
		s.LastLoser = *snap.LastLoser
	}
	return s
}

// Encode 序列化为缓存格式
func Encode(s *State) ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Decode 按版本化格式反序列化
//
// Strict 模式拒绝缺失字段、未知字段和非当前版本；
// Lenient 模式以新建对局的默认值填充缺失字段，忽略未知字段，
// 并修正越界的挡板位置。两种模式都要求 room_code 和合法的 status。
func Decode(data []byte, mode DecodeMode) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	version := SchemaVersion
	if v, ok := raw["schema_version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, fmt.Errorf("%w: schema_version: %v", ErrInvalidSnapshot, err)
		}
	} else if mode == Strict {
		return nil, fmt.Errorf("%w: schema_version", ErrMissingField)
	}
	if version < 1 || version > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}

	var snap Snapshot
	if mode == Strict {
		for _, name := range snapshotFields() {
			if _, ok := raw[name]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
			}
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			if strings.Contains(err.Error(), "unknown field") {
				return nil, fmt.Errorf("%w: %v", ErrUnknownField, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	} else {
		snap = NewState("").Snapshot()
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}

	if snap.RoomCode == "" {
		return nil, fmt.Errorf("%w: empty room_code", ErrInvalidSnapshot)
	}
	if !snap.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidSnapshot, snap.Status)
	}

	s := snap.State()
	if mode == Lenient {
		s.sanitize()
	}
	return s, nil
}

// sanitize 修正来自旧版本或部分写入的数据
func (s *State) sanitize() {
	if s.CanvasWidth <= 0 || s.CanvasHeight <= 0 {
		s.CanvasWidth, s.CanvasHeight = CanvasWidth, CanvasHeight
	}
	if s.PaddleHeight <= 0 || s.PaddleHeight > s.CanvasHeight {
		s.PaddleHeight = PaddleHeight
	}
	if s.WinningScore <= 0 {
		s.WinningScore = WinningScore
	}
	if s.LastLoser != 1 && s.LastLoser != 2 {
		s.LastLoser = 0
	}
	s.Player1PaddleY = s.ClampPaddle(s.Player1PaddleY)
	s.Player2PaddleY = s.ClampPaddle(s.Player2PaddleY)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
}

var (
	fieldsOnce sync.Once
	fieldNames []string
)

// snapshotFields Snapshot 的全部 JSON 字段名
func snapshotFields() []string {
	fieldsOnce.Do(func() {
		t := reflect.TypeOf(Snapshot{})
		for i := 0; i < t.NumField(); i++ {
			name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
			if name != "" && name != "-" {
				fieldNames = append(fieldNames, name)
			}
		}
	})
	return fieldNames
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
