package room

const (
	// GameKeyPrefix 对局快照 Redis Key 前缀
	GameKeyPrefix = "pong:game:"
)

// BuildGameKey 构建对局快照 Key
// Key: pong:game:{roomCode}
func BuildGameKey(roomCode string) string {
	return GameKeyPrefix + roomCode
}
