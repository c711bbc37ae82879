package game

import (
	"math/rand/v2"
	"time"
)

// Status 对局生命周期状态，只会单向推进
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusOngoing  Status = "ONGOING"
	StatusFinished Status = "FINISHED"
)

// Valid 是否为合法状态
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusOngoing, StatusFinished:
		return true
	}
	return false
}

// rank 用于保证状态不回退
func (s Status) rank() int {
	switch s {
	case StatusOngoing:
		return 1
	case StatusFinished:
		return 2
	}
	return 0
}

// 画布与物理常量
const (
	CanvasWidth  = 800.0
	CanvasHeight = 600.0

	PaddleWidth  = 12.0
	PaddleHeight = 120.0
	PaddleSpeed  = 10.0

	BallSize          = 20.0
	BallInitialSpeedX = 7.0
	BallInitialSpeedY = 7.0

	SpeedIncreaseFactor = 1.05
	RubberBandFactor    = 1.2
	AngleLimit          = 0.75

	WinningScore = 10

	// 落后超过该分差时触发追赶加速
	rubberBandGap = 3
	// 反弹后竖直速度 = 角度 * bounceScale
	bounceScale = 6.0
	// 客户端指定发球速度的上限
	maxServeSpeed = 2 * BallInitialSpeedX
)

// State 单个房间的权威对局状态
// 纯数据 + 物理方法，不做任何 I/O；并发保护由持有者（房间注册表）负责
type State struct {
	RoomCode string
	Status   Status
	IsPaused bool

	Player1ID       string
	Player2ID       string
	Player1Username string
	Player2Username string

	Player1Score int
	Player2Score int
	WinningScore int

	CanvasWidth  float64
	CanvasHeight float64
	PaddleWidth  float64
	PaddleHeight float64
	PaddleSpeed  float64
	BallSize     float64

	Player1PaddleY float64
	Player2PaddleY float64

	BallX      float64
	BallY      float64
	BallSpeedX float64
	BallSpeedY float64

	// LastLoser 上一分的失分方，0 表示尚无
	LastLoser int

	Player1MovingUp   bool
	Player1MovingDown bool
	Player2MovingUp   bool
	Player2MovingDown bool

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	rng *rand.Rand
}

// NewState 创建处于 WAITING 状态的新对局
func NewState(roomCode string) *State {
	s := &State{
		RoomCode:     roomCode,
		Status:       StatusWaiting,
		WinningScore: WinningScore,
		CanvasWidth:  CanvasWidth,
		CanvasHeight: CanvasHeight,
		PaddleWidth:  PaddleWidth,
		PaddleHeight: PaddleHeight,
		PaddleSpeed:  PaddleSpeed,
		BallSize:     BallSize,
		CreatedAt:    time.Now(),
	}
	s.Player1PaddleY = s.centeredPaddleY()
	s.Player2PaddleY = s.centeredPaddleY()
	s.ResetBall()
	return s
}

// SetRand 注入随机源，测试中用于复现发球方向
func (s *State) SetRand(r *rand.Rand) {
	s.rng = r
}

func (s *State) randomSign() float64 {
	var f float64
	if s.rng != nil {
		f = s.rng.Float64()
	} else {
		f = rand.Float64()
	}
	if f > 0.5 {
		return 1
	}
	return -1
}

func (s *State) centeredPaddleY() float64 {
	return float64(int((s.CanvasHeight - s.PaddleHeight) / 2))
}

// MaxPaddleY 挡板允许的最大 y
func (s *State) MaxPaddleY() float64 {
	return s.CanvasHeight - s.PaddleHeight
}

// ClampPaddle 把挡板位置限制在 [0, CanvasHeight-PaddleHeight]
func (s *State) ClampPaddle(y float64) float64 {
	if y < 0 {
		return 0
	}
	if limit := s.MaxPaddleY(); y > limit {
		return limit
	}
	return y
}

// SetStatus 推进状态，拒绝回退
func (s *State) SetStatus(status Status) bool {
	if status.rank() < s.Status.rank() {
		return false
	}
	if status == StatusOngoing && s.Status == StatusWaiting {
		s.StartedAt = time.Now()
	}
	s.Status = status
	return true
}

// PlayerID 返回指定槽位的玩家 ID
func (s *State) PlayerID(slot int) string {
	switch slot {
	case 1:
		return s.Player1ID
	case 2:
		return s.Player2ID
	}
	return ""
}

// SetPlayer 占用槽位
func (s *State) SetPlayer(slot int, playerID, username string) {
	switch slot {
	case 1:
		s.Player1ID = playerID
		s.Player1Username = username
	case 2:
		s.Player2ID = playerID
		s.Player2Username = username
	}
}

// SlotOf 返回玩家所在槽位，不在房间内返回 0
func (s *State) SlotOf(playerID string) int {
	if playerID == "" {
		return 0
	}
	switch playerID {
	case s.Player1ID:
		return 1
	case s.Player2ID:
		return 2
	}
	return 0
}

// PlayerCount 已占用的槽位数
func (s *State) PlayerCount() int {
	n := 0
	if s.Player1ID != "" {
		n++
	}
	if s.Player2ID != "" {
		n++
	}
	return n
}

// BothSlotsFilled 两个槽位是否都有人
func (s *State) BothSlotsFilled() bool {
	return s.Player1ID != "" && s.Player2ID != ""
}

// SetPaddle 设置挡板位置（客户端权威模式），返回校验后的位置
func (s *State) SetPaddle(slot int, y float64) float64 {
	y = s.ClampPaddle(y)
	switch slot {
	case 1:
		s.Player1PaddleY = y
	case 2:
		s.Player2PaddleY = y
	}
	return y
}

// PaddleY 返回指定槽位的挡板位置
func (s *State) PaddleY(slot int) float64 {
	if slot == 2 {
		return s.Player2PaddleY
	}
	return s.Player1PaddleY
}

// SetMovement 设置服务端模拟模式下的移动意图
func (s *State) SetMovement(slot int, up, down bool) {
	switch slot {
	case 1:
		s.Player1MovingUp, s.Player1MovingDown = up, down
	case 2:
		s.Player2MovingUp, s.Player2MovingDown = up, down
	}
}

// Pause 暂停对局，保留球速以便恢复
func (s *State) Pause() {
	s.IsPaused = true
}

// Resume 恢复对局，只对 ONGOING 对局生效
// speedX/speedY 为恢复方给出的发球速度；未给出且球静止时由服务端按常量发球
func (s *State) Resume(speedX, speedY *float64) {
	if s.Status != StatusOngoing {
		return
	}
	if speedX != nil && speedY != nil && validServe(*speedX, *speedY) {
		s.BallSpeedX = clamp(*speedX, -maxServeSpeed, maxServeSpeed)
		s.BallSpeedY = clamp(*speedY, -maxServeSpeed, maxServeSpeed)
		s.IsPaused = false
		return
	}
	if s.BallSpeedX == 0 && s.BallSpeedY == 0 {
		s.IsPaused = true
		s.ResumeBall()
		return
	}
	s.IsPaused = false
}

func validServe(x, y float64) bool {
	return x != 0 && isFinite(x) && isFinite(y)
}

// Duration 对局时长
func (s *State) Duration(now time.Time) time.Duration {
	start := s.StartedAt
	if start.IsZero() {
		start = s.CreatedAt
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = now
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// WinnerID 胜者 ID，未结束返回空
func (s *State) WinnerID() string {
	if s.Status != StatusFinished {
		return ""
	}
	switch {
	case s.Player1Score >= s.WinningScore:
		return s.Player1ID
	case s.Player2Score >= s.WinningScore:
		return s.Player2ID
	}
	return ""
}

// Clone 深拷贝（随机源共享）
func (s *State) Clone() *State {
	c := *s
	return &c
}
