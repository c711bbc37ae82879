package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.pong/internal/game"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Inbound
	}{
		{
			name: "join with identity",
			data: `{"type":"join_game","player_id":"u1","username":"alice"}`,
			want: JoinGame{PlayerID: "u1", Username: "alice"},
		},
		{
			name: "join bare",
			data: `{"type":"join_game"}`,
			want: JoinGame{},
		},
		{
			name: "key event",
			data: `{"type":"key_event","key":"ArrowUp","is_down":true,"player_number":2}`,
			want: KeyEvent{Key: "ArrowUp", IsDown: true, PlayerNumber: 2},
		},
		{
			name: "pause",
			data: `{"type":"pause_game"}`,
			want: PauseGame{},
		},
		{
			name: "ping",
			data: `{"type":"ping","timestamp":1712.5}`,
			want: Ping{Timestamp: 1712.5},
		},
		{
			name: "pong",
			data: `{"type":"pong"}`,
			want: Pong{},
		},
		{
			name: "prediction",
			data: `{"type":"prediction","sequence":4,"ball_x":10,"ball_y":20}`,
			want: Prediction{Sequence: 4, BallX: 10, BallY: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInbound_PaddlePosition(t *testing.T) {
	got, err := DecodeInbound([]byte(`{"type":"paddle_position","player_number":1,"position":250.5,"sequence":17,"timestamp":99}`))
	require.NoError(t, err)

	p, ok := got.(PaddlePosition)
	require.True(t, ok)
	assert.Equal(t, 1, p.PlayerNumber)
	require.NotNil(t, p.Position)
	assert.Equal(t, 250.5, *p.Position)
	assert.Equal(t, int64(17), p.Sequence)

	_, err = DecodeInbound([]byte(`{"type":"paddle_position","player_number":1}`))
	require.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "Missing required field: position", ErrorText(err))
}

func TestDecodeInbound_ResumeVelocity(t *testing.T) {
	got, err := DecodeInbound([]byte(`{"type":"resume_game","ball_speed_x":-7,"ball_speed_y":3}`))
	require.NoError(t, err)
	r := got.(ResumeGame)
	require.NotNil(t, r.BallSpeedX)
	require.NotNil(t, r.BallSpeedY)
	assert.Equal(t, -7.0, *r.BallSpeedX)
	assert.Equal(t, 3.0, *r.BallSpeedY)

	got, err = DecodeInbound([]byte(`{"type":"resume_game"}`))
	require.NoError(t, err)
	assert.Nil(t, got.(ResumeGame).BallSpeedX)
}

func TestDecodeInbound_Errors(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":`))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "Invalid JSON format", ErrorText(err))

	_, err = DecodeInbound([]byte(`{"type":"teleport"}`))
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, "Unknown message type: teleport", ErrorText(err))

	_, err = DecodeInbound([]byte(`{"type":"key_event","is_down":"yes"}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestKeyEvent_NormalizedKey(t *testing.T) {
	assert.Equal(t, "arrowdown", KeyEvent{Key: "ArrowDown"}.NormalizedKey())
}

func decodeObject(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestEncode_FullStateIsFlat(t *testing.T) {
	s := game.NewState("ABC123")
	data, err := Encode(FullState(s.Snapshot()))
	require.NoError(t, err)

	m := decodeObject(t, data)
	assert.Equal(t, "game_state", m["type"])
	assert.Equal(t, true, m["is_full_state"])
	assert.Equal(t, "ABC123", m["room_code"])
	assert.Equal(t, "WAITING", m["status"])
	assert.Contains(t, m, "ball_x")

	back, err := DecodeOutbound(data)
	require.NoError(t, err)
	full := back.(GameState)
	assert.True(t, full.IsFullState)
	assert.Equal(t, "ABC123", full.RoomCode)
}

func TestEncode_Delta(t *testing.T) {
	data, err := Encode(StateDelta{Fields: map[string]any{"ball_x": 407.0, "player_1_score": 2}})
	require.NoError(t, err)

	m := decodeObject(t, data)
	assert.Equal(t, "game_state_delta", m["type"])
	assert.Equal(t, false, m["is_full_state"])
	assert.Equal(t, 407.0, m["ball_x"])
	assert.Len(t, m, 4)

	back, err := DecodeOutbound(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ball_x": 407.0, "player_1_score": 2.0}, back.(StateDelta).Fields)
}

func TestEncode_TypedMessages(t *testing.T) {
	msgs := []Outbound{
		PlayerJoined{PlayerNumber: 1, PlayerID: "u1", Username: "alice", IsYou: true, Timestamp: 1},
		PlayerLeft{PlayerNumber: 2, PlayerID: "u2", Username: "bob", Timestamp: 2},
		GoalScored{Scorer: 2, Player2Score: 1, Player1Username: "alice", Player2Username: "bob", Timestamp: 3},
		GameOver{Winner: 1, Player1Score: 10, Player2Score: 4, Timestamp: 4},
		GamePaused{PlayerNumber: 1, Timestamp: 5},
		GameResumed{PlayerNumber: 2, BallSpeedX: -7, BallSpeedY: 7, Timestamp: 6},
		InputAck{Sequence: 9, Position: 480, ForceReconcile: true, Timestamp: 7},
		Error{Message: "Room not found"},
		PongReply{ClientTimestamp: 12.5, ServerTime: 8},
	}

	for _, msg := range msgs {
		t.Run(msg.Type(), func(t *testing.T) {
			data, err := Encode(msg)
			require.NoError(t, err)
			assert.Equal(t, msg.Type(), decodeObject(t, data)["type"])

			back, err := DecodeOutbound(data)
			require.NoError(t, err)
			assert.Equal(t, msg, back)
		})
	}
}

func TestEncode_EmptyObject(t *testing.T) {
	data, err := Encode(Error{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":""}`, string(data))
}
