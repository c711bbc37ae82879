package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 携带错误码和玩家可见的消息，原始错误只用于日志
type AppError struct {
	Code    int    // 错误码
	Message string // 玩家可见的错误消息
	Err     error  // 原始错误（可选）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage 替换玩家可见消息，保留错误码
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 协议相关 20000-20999
	CodeProtocol         = 20001
	CodeUnknownMessage   = 20002
	CodeUnauthorizedSlot = 20003
	CodeNotJoined        = 20004

	// 房间相关 21000-21999
	CodeRoomNotFound     = 21001
	CodeRoomFull         = 21002
	CodeGameEnded        = 21003
	CodeRoomCodeRequired = 21004
	CodeNotRoomCreator   = 21005
	CodeRoomStarted      = 21006

	// 认证相关 10000-10999
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004

	// 参数相关
	CodeInvalidParams = 11002

	// 系统错误 50000-50999
	CodeServerError      = 50001
	CodeStoreUnavailable = 50004
)

// ============== 预定义错误 ==============

// 协议相关
var (
	ErrProtocol         = NewError(CodeProtocol, "Invalid message format")
	ErrUnknownMessage   = NewError(CodeUnknownMessage, "Unknown message type")
	ErrUnauthorizedSlot = NewError(CodeUnauthorizedSlot, "Not your paddle")
	ErrNotJoined        = NewError(CodeNotJoined, "Join the game first")
)

// 房间相关
var (
	ErrRoomNotFound     = NewError(CodeRoomNotFound, "Room not found")
	ErrRoomFull         = NewError(CodeRoomFull, "Room is full")
	ErrGameEnded        = NewError(CodeGameEnded, "Game has already ended")
	ErrRoomCodeRequired = NewError(CodeRoomCodeRequired, "Room code is required")
	ErrNotRoomCreator   = NewError(CodeNotRoomCreator, "Only the room creator can delete it")
	ErrRoomStarted      = NewError(CodeRoomStarted, "Room already has a second player")
)

// 认证相关
var (
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token is invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token has expired")
)

// 系统相关
var (
	ErrInvalidParams    = NewError(CodeInvalidParams, "Invalid parameters")
	ErrServerError      = NewError(CodeServerError, "Internal server error")
	ErrStoreUnavailable = NewError(CodeStoreUnavailable, "Cache store unavailable")
)
