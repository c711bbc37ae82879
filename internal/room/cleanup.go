package room

import (
	"context"
	"time"

	"sudooom.pong/internal/game"
	"sudooom.pong/internal/task"
)

const cleanupTaskID = "room-cleanup"

// ensureCleanup 第一次创建房间时启动周期清理任务
func (r *Registry) ensureCleanup() {
	if r.scheduler == nil {
		return
	}
	r.cleanupOnce.Do(func() {
		delay := int(r.opts.CleanupInterval / time.Second)
		t := task.NewRepeatingTask(cleanupTaskID, "rooms", delay, func(ctx context.Context, _ string) error {
			r.Sweep(ctx)
			return nil
		})
		if err := r.scheduler.AddTask(t); err != nil {
			r.logger.Error("Failed to schedule room cleanup", "error", err)
			return
		}
		r.logger.Info("Room cleanup scheduled", "interval", r.opts.CleanupInterval)
	})
}

// Sweep 清理过期房间，返回清理数量
//
// FINISHED 超过保留期的房间从内存和缓存中彻底删除；
// 本进程已无在线会话且长时间无活动的未结束房间只从内存中移出，
// 缓存副本由 TTL 过期，避免误删其他进程仍在使用的房间。
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now()

	var finished, idle []string
	r.rooms.Range(func(key, value any) bool {
		code := key.(string)
		e := value.(*entry)

		e.mu.Lock()
		status := e.state.Status
		finishedAt := e.state.FinishedAt
		lastActive := e.lastActive
		e.mu.Unlock()

		switch {
		case status == game.StatusFinished:
			if finishedAt.IsZero() {
				finishedAt = lastActive
			}
			if now.Sub(finishedAt) > r.opts.FinishedRetention {
				finished = append(finished, code)
			}
		case now.Sub(lastActive) > r.opts.InactiveTTL:
			if r.sessions == nil || r.sessions.ConnectedCount(code) == 0 {
				idle = append(idle, code)
			}
		}
		return true
	})

	removed := 0
	for _, code := range finished {
		if r.deleteSafely(ctx, code) {
			removed++
		}
	}
	for _, code := range idle {
		r.evict(code)
		removed++
	}

	if removed > 0 {
		r.logger.Info("Room cleanup finished",
			"finished", len(finished),
			"idle", len(idle))
	}
	return removed
}

// deleteSafely 单个房间删除失败（panic）不影响其他房间
func (r *Registry) deleteSafely(ctx context.Context, code string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Failed to clean up room", "roomCode", code, "panic", rec)
			ok = false
		}
	}()
	r.Delete(ctx, code)
	return true
}

// evict 只从本进程移出房间
func (r *Registry) evict(code string) {
	if value, ok := r.rooms.LoadAndDelete(code); ok {
		e := value.(*entry)
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	if r.sessions != nil {
		r.sessions.DeleteRoom(code)
	}
	r.logger.Info("Evicted idle room", "roomCode", code)
}
