package game

// Fields 把快照展开为字段表，用于增量计算
// 指针字段展开为值或 nil，保证 map 中的值都可比较
func (snap Snapshot) Fields() map[string]any {
	return map[string]any{
		"schema_version":       snap.SchemaVersion,
		"room_code":            snap.RoomCode,
		"status":               string(snap.Status),
		"is_paused":            snap.IsPaused,
		"player_1_id":          derefString(snap.Player1ID),
		"player_2_id":          derefString(snap.Player2ID),
		"player_1_username":    snap.Player1Username,
		"player_2_username":    snap.Player2Username,
		"player_1_score":       snap.Player1Score,
		"player_2_score":       snap.Player2Score,
		"winning_score":        snap.WinningScore,
		"canvas_width":         snap.CanvasWidth,
		"canvas_height":        snap.CanvasHeight,
		"paddle_width":         snap.PaddleWidth,
		"paddle_height":        snap.PaddleHeight,
		"paddle_speed":         snap.PaddleSpeed,
		"player_1_paddle_y":    snap.Player1PaddleY,
		"player_2_paddle_y":    snap.Player2PaddleY,
		"ball_x":               snap.BallX,
		"ball_y":               snap.BallY,
		"ball_size":            snap.BallSize,
		"ball_speed_x":         snap.BallSpeedX,
		"ball_speed_y":         snap.BallSpeedY,
		"last_loser":           derefInt(snap.LastLoser),
		"player_1_moving_up":   snap.Player1MovingUp,
		"player_1_moving_down": snap.Player1MovingDown,
		"player_2_moving_up":   snap.Player2MovingUp,
		"player_2_moving_down": snap.Player2MovingDown,
		"created_at":           snap.CreatedAt,
		"started_at":           snap.StartedAt,
		"finished_at":          snap.FinishedAt,
		"timestamp":            snap.Timestamp,
	}
}

// Delta 计算 next 相对 prev 变化的字段（忽略时间戳）
func Delta(prev, next Snapshot) map[string]any {
	before := prev.Fields()
	after := next.Fields()

	changed := make(map[string]any)
	for key, value := range after {
		if key == "timestamp" {
			continue
		}
		if before[key] != value {
			changed[key] = value
		}
	}
	return changed
}

// Apply 把增量应用到快照上，客户端与测试使用同一套规则
func (snap Snapshot) Apply(delta map[string]any) Snapshot {
	for key, value := range delta {
		switch key {
		case "status":
			if v, ok := value.(string); ok {
				snap.Status = Status(v)
			}
		case "is_paused":
			snap.IsPaused = asBool(value, snap.IsPaused)
		case "player_1_id":
			snap.Player1ID = asOptString(value)
		case "player_2_id":
			snap.Player2ID = asOptString(value)
		case "player_1_username":
			snap.Player1Username = asString(value, snap.Player1Username)
		case "player_2_username":
			snap.Player2Username = asString(value, snap.Player2Username)
		case "player_1_score":
			snap.Player1Score = int(asFloat(value, float64(snap.Player1Score)))
		case "player_2_score":
			snap.Player2Score = int(asFloat(value, float64(snap.Player2Score)))
		case "player_1_paddle_y":
			snap.Player1PaddleY = asFloat(value, snap.Player1PaddleY)
		case "player_2_paddle_y":
			snap.Player2PaddleY = asFloat(value, snap.Player2PaddleY)
		case "ball_x":
			snap.BallX = asFloat(value, snap.BallX)
		case "ball_y":
			snap.BallY = asFloat(value, snap.BallY)
		case "ball_speed_x":
			snap.BallSpeedX = asFloat(value, snap.BallSpeedX)
		case "ball_speed_y":
			snap.BallSpeedY = asFloat(value, snap.BallSpeedY)
		case "last_loser":
			if value == nil {
				snap.LastLoser = nil
			} else {
				loser := int(asFloat(value, 0))
				snap.LastLoser = &loser
			}
		case "player_1_moving_up":
			snap.Player1MovingUp = asBool(value, snap.Player1MovingUp)
		case "player_1_moving_down":
			snap.Player1MovingDown = asBool(value, snap.Player1MovingDown)
		case "player_2_moving_up":
			snap.Player2MovingUp = asBool(value, snap.Player2MovingUp)
		case "player_2_moving_down":
			snap.Player2MovingDown = asBool(value, snap.Player2MovingDown)
		case "started_at":
			snap.StartedAt = int64(asFloat(value, float64(snap.StartedAt)))
		case "finished_at":
			snap.FinishedAt = int64(asFloat(value, float64(snap.FinishedAt)))
		}
	}
	return snap
}

func derefString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func asOptString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func asString(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func asBool(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// asFloat 兼容本地 map（int/int64/float64）和 JSON 解码后的 float64
func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}
