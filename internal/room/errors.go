package room

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrCacheMiss     = errors.New("room cache miss")
	ErrCodeExhausted = errors.New("could not generate a unique room code")
)
