package game

import (
	"math"
	"time"
)

// ResetBall 球回到中心并静止，进入暂停
func (s *State) ResetBall() {
	s.BallX = s.CanvasWidth / 2
	s.BallY = s.CanvasHeight / 2
	s.BallSpeedX = 0
	s.BallSpeedY = 0
	s.IsPaused = true
}

// ResumeBall 发球：朝上一分失分方发出，竖直方向随机
// 未暂停时不做任何事
func (s *State) ResumeBall() {
	if !s.IsPaused {
		return
	}
	if s.LastLoser == 1 {
		s.BallSpeedX = -BallInitialSpeedX
	} else {
		s.BallSpeedX = BallInitialSpeedX
	}
	s.BallSpeedY = s.randomSign() * BallInitialSpeedY
	s.IsPaused = false
}

// Update 推进一帧，返回得分方（0 表示无人得分）
func (s *State) Update() int {
	if s.IsPaused || s.Status == StatusFinished {
		return 0
	}

	s.movePaddles()

	s.BallX += s.BallSpeedX
	s.BallY += s.BallSpeedY

	radius := s.BallSize / 2

	// 上下墙反弹，同时修正位置防止穿墙
	if s.BallY-radius <= 0 {
		s.BallY = radius
		s.BallSpeedY = math.Abs(s.BallSpeedY)
	} else if s.BallY+radius >= s.CanvasHeight {
		s.BallY = s.CanvasHeight - radius
		s.BallSpeedY = -math.Abs(s.BallSpeedY)
	}

	// 只检测球正在飞向的那一侧，避免同一帧重复反弹
	if s.BallSpeedX < 0 &&
		s.BallX-radius <= s.PaddleWidth &&
		s.overlapsPaddle(s.Player1PaddleY) {
		s.bounce(1, radius)
	} else if s.BallSpeedX > 0 &&
		s.BallX+radius >= s.CanvasWidth-s.PaddleWidth &&
		s.overlapsPaddle(s.Player2PaddleY) {
		s.bounce(2, radius)
	}

	if s.BallX-radius <= 0 {
		s.Player2Score++
		s.LastLoser = 1
		s.ResetBall()
		return 2
	}
	if s.BallX+radius >= s.CanvasWidth {
		s.Player1Score++
		s.LastLoser = 2
		s.ResetBall()
		return 1
	}

	return 0
}

// CheckForWinner 检查胜者，达到胜利分数时进入 FINISHED（终态）
func (s *State) CheckForWinner() int {
	winner := 0
	switch {
	case s.Player1Score >= s.WinningScore:
		winner = 1
	case s.Player2Score >= s.WinningScore:
		winner = 2
	}
	if winner == 0 {
		return 0
	}
	if s.Status != StatusFinished {
		s.SetStatus(StatusFinished)
		s.FinishedAt = time.Now()
		s.IsPaused = true
	}
	return winner
}

// NearPaddlePlane 球是否正飞向该玩家挡板且距离挡板平面不超过 margin
// 此时客户端预测最容易和服务端碰撞结果不一致
func (s *State) NearPaddlePlane(slot int, margin float64) bool {
	if s.IsPaused {
		return false
	}
	radius := s.BallSize / 2
	switch slot {
	case 1:
		return s.BallSpeedX < 0 && s.BallX-radius-s.PaddleWidth <= margin
	case 2:
		return s.BallSpeedX > 0 && (s.CanvasWidth-s.PaddleWidth)-(s.BallX+radius) <= margin
	}
	return false
}

func (s *State) movePaddles() {
	s.Player1PaddleY = s.stepPaddle(s.Player1PaddleY, s.Player1MovingUp, s.Player1MovingDown)
	s.Player2PaddleY = s.stepPaddle(s.Player2PaddleY, s.Player2MovingUp, s.Player2MovingDown)
}

func (s *State) stepPaddle(y float64, up, down bool) float64 {
	if up {
		y -= s.PaddleSpeed
	}
	if down {
		y += s.PaddleSpeed
	}
	return s.ClampPaddle(y)
}

func (s *State) overlapsPaddle(paddleY float64) bool {
	return s.BallY >= paddleY && s.BallY <= paddleY+s.PaddleHeight
}

func (s *State) bounce(slot int, radius float64) {
	paddleY := s.PaddleY(slot)
	half := s.PaddleHeight / 2
	normalized := (s.BallY - (paddleY + half)) / half
	angle := clamp(normalized*AngleLimit, -AngleLimit, AngleLimit)

	if slot == 1 {
		s.BallX = s.PaddleWidth + radius
		s.BallSpeedX = math.Abs(s.BallSpeedX)
	} else {
		s.BallX = s.CanvasWidth - s.PaddleWidth - radius
		s.BallSpeedX = -math.Abs(s.BallSpeedX)
	}
	s.BallSpeedY = angle * bounceScale

	s.BallSpeedX *= SpeedIncreaseFactor
	s.BallSpeedY *= SpeedIncreaseFactor

	if s.trails(slot) {
		s.BallSpeedX *= RubberBandFactor
		s.BallSpeedY *= RubberBandFactor
	}
}

// trails 击球方是否落后对手超过 rubberBandGap 分
func (s *State) trails(slot int) bool {
	own, other := s.Player1Score, s.Player2Score
	if slot == 2 {
		own, other = other, own
	}
	return other-own > rubberBandGap
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
