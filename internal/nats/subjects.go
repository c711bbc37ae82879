package nats

import "strings"

// NATS Subject 常量定义
const (
	// SubjectRoomEventsPrefix 房间事件前缀，完整格式: pong.room.{roomCode}.events
	SubjectRoomEventsPrefix = "pong.room."
	SubjectRoomEventsSuffix = ".events"

	// SubjectRoomEventsAll 订阅全部房间事件
	SubjectRoomEventsAll = "pong.room.*.events"

	// SubjectNodeCommandPrefix 转发给租约持有节点的输入，完整格式: pong.node.{nodeId}.cmd
	SubjectNodeCommandPrefix = "pong.node."
	SubjectNodeCommandSuffix = ".cmd"
)

// BuildRoomEventsSubject 构建房间事件 Subject
func BuildRoomEventsSubject(roomCode string) string {
	return SubjectRoomEventsPrefix + roomCode + SubjectRoomEventsSuffix
}

// BuildNodeCommandSubject 构建节点命令 Subject
func BuildNodeCommandSubject(nodeID string) string {
	return SubjectNodeCommandPrefix + nodeID + SubjectNodeCommandSuffix
}

// RoomCodeFromSubject 从房间事件 Subject 中解析房间码
func RoomCodeFromSubject(subject string) (string, bool) {
	if !strings.HasPrefix(subject, SubjectRoomEventsPrefix) || !strings.HasSuffix(subject, SubjectRoomEventsSuffix) {
		return "", false
	}
	code := strings.TrimSuffix(strings.TrimPrefix(subject, SubjectRoomEventsPrefix), SubjectRoomEventsSuffix)
	if code == "" || strings.Contains(code, ".") {
		return "", false
	}
	return code, true
}
