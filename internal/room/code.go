package room

import (
	"context"
	"math/rand/v2"
	"strings"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 20
)

// GenerateCode 生成未被占用的 6 位房间码
// 同时检查本进程内存与共享缓存，缓存是权威来源；缓存不可用时只检查内存
func (r *Registry) GenerateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomCode(r.intN)
		if _, ok := r.rooms.Load(code); ok {
			continue
		}
		if r.cache != nil {
			exists, err := r.cache.Exists(ctx, code)
			if err != nil {
				r.logger.Warn("Room cache unavailable, checking memory only",
					"roomCode", code,
					"error", err)
			} else if exists {
				continue
			}
		}
		return code, nil
	}
	return "", ErrCodeExhausted
}

func randomCode(intN func(int) int) string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[intN(len(codeAlphabet))])
	}
	return b.String()
}

var defaultIntN = rand.IntN
