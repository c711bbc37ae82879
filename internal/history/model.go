package history

import (
	"time"

	"sudooom.pong/internal/game"
)

// Result 一局已结束对局的结果
type Result struct {
	ID              int64     `json:"id"`
	RoomCode        string    `json:"room_code"`
	Player1ID       string    `json:"player_1_id"`
	Player2ID       string    `json:"player_2_id"`
	Player1Username string    `json:"player_1_username"`
	Player2Username string    `json:"player_2_username"`
	Score1          int       `json:"score_1"`
	Score2          int       `json:"score_2"`
	WinnerID        string    `json:"winner_id"`
	DurationSeconds int       `json:"duration_seconds"`
	FinishedAt      time.Time `json:"finished_at"`
}

// FromState 由 FINISHED 状态构造结果
func FromState(s *game.State) Result {
	finishedAt := s.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	return Result{
		RoomCode:        s.RoomCode,
		Player1ID:       s.Player1ID,
		Player2ID:       s.Player2ID,
		Player1Username: s.Player1Username,
		Player2Username: s.Player2Username,
		Score1:          s.Player1Score,
		Score2:          s.Player2Score,
		WinnerID:        s.WinnerID(),
		DurationSeconds: int(s.Duration(finishedAt) / time.Second),
		FinishedAt:      finishedAt,
	}
}
