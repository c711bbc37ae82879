package protocol

// 入站消息类型
const (
	TypeJoinGame       = "join_game"
	TypeKeyEvent       = "key_event"
	TypePaddlePosition = "paddle_position"
	TypePauseGame      = "pause_game"
	TypeResumeGame     = "resume_game"
	TypePing           = "ping"
	TypePong           = "pong"
	TypePrediction     = "prediction"
)

// 出站消息类型
const (
	TypeGameState      = "game_state"
	TypeGameStateDelta = "game_state_delta"
	TypePlayerJoined   = "player_joined"
	TypePlayerLeft     = "player_left"
	TypeGoalScored     = "goal_scored"
	TypeGameOver       = "game_over"
	TypeGamePaused     = "game_paused"
	TypeGameResumed    = "game_resumed"
	TypeInputAck       = "input_ack"
	TypeError          = "error"
)
