package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeMap(t *testing.T, s *State) map[string]any {
	t.Helper()
	data, err := Encode(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func marshal(t *testing.T, m map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return data
}

func TestDecode_StrictRoundTrip(t *testing.T) {
	s := newPlaying(t)
	s.BallX, s.BallY = 123.25, 77.5
	s.BallSpeedX, s.BallSpeedY = -7.35, 2.1
	s.Player2Score = 3
	s.LastLoser = 1
	s.SetMovement(2, true, false)

	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data, Strict)
	require.NoError(t, err)

	assert.Equal(t, stable(s), stable(got))
}

func TestDecode_StrictRejectsMissingField(t *testing.T) {
	m := encodeMap(t, newPlaying(t))
	delete(m, "ball_speed_y")

	_, err := Decode(marshal(t, m), Strict)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "ball_speed_y")
}

func TestDecode_StrictRejectsUnknownField(t *testing.T) {
	m := encodeMap(t, newPlaying(t))
	m["ball_spin"] = 3

	_, err := Decode(marshal(t, m), Strict)
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestDecode_StrictRequiresVersion(t *testing.T) {
	m := encodeMap(t, newPlaying(t))
	delete(m, "schema_version")

	_, err := Decode(marshal(t, m), Strict)
	require.ErrorIs(t, err, ErrMissingField)

	_, err = Decode(marshal(t, m), Lenient)
	require.NoError(t, err)
}

func TestDecode_LenientFillsDefaults(t *testing.T) {
	data := []byte(`{"room_code":"XYZ789","status":"ONGOING","player_1_id":"p1","player_1_score":4,"mystery":true}`)

	s, err := Decode(data, Lenient)
	require.NoError(t, err)

	assert.Equal(t, "XYZ789", s.RoomCode)
	assert.Equal(t, StatusOngoing, s.Status)
	assert.Equal(t, "p1", s.Player1ID)
	assert.Empty(t, s.Player2ID)
	assert.Equal(t, 4, s.Player1Score)
	assert.Equal(t, WinningScore, s.WinningScore)
	assert.Equal(t, PaddleHeight, s.PaddleHeight)
	assert.Equal(t, 240.0, s.Player2PaddleY)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestDecode_LenientSanitizesOutOfRange(t *testing.T) {
	m := encodeMap(t, newPlaying(t))
	m["player_1_paddle_y"] = -40
	m["player_2_paddle_y"] = 9000
	m["last_loser"] = 7
	m["winning_score"] = 0

	s, err := Decode(marshal(t, m), Lenient)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Player1PaddleY)
	assert.Equal(t, s.MaxPaddleY(), s.Player2PaddleY)
	assert.Equal(t, 0, s.LastLoser)
	assert.Equal(t, WinningScore, s.WinningScore)
}

func TestDecode_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{name: "not json", data: `{"room_code":`, err: ErrInvalidSnapshot},
		{name: "future version", data: `{"schema_version":99,"room_code":"A","status":"WAITING"}`, err: ErrUnsupportedSchema},
		{name: "empty room code", data: `{"status":"WAITING"}`, err: ErrInvalidSnapshot},
		{name: "bad status", data: `{"room_code":"A","status":"PLAYING"}`, err: ErrInvalidSnapshot},
		{name: "wrong type", data: `{"room_code":"A","status":"WAITING","ball_x":"fast"}`, err: ErrInvalidSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), Lenient)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSnapshot_NullableFields(t *testing.T) {
	s := NewState("ABC123")
	m := encodeMap(t, s)

	assert.Nil(t, m["player_1_id"])
	assert.Nil(t, m["player_2_id"])
	assert.Nil(t, m["last_loser"])
	assert.Equal(t, "WAITING", m["status"])
	assert.EqualValues(t, SchemaVersion, m["schema_version"])
}
