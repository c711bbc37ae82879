package history

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sudooom.pong/internal/workerpool"
)

var ErrInvalidResult = errors.New("history: result missing players")

// Recorder 对局结果记录
type Recorder interface {
	Record(ctx context.Context, result Result) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]Result, error)
}

func validate(r Result) error {
	if r.RoomCode == "" || r.Player1ID == "" || r.Player2ID == "" {
		return ErrInvalidResult
	}
	return nil
}

// AsyncRecorder 把写入交给 Worker Pool，调用方不等待也不感知失败
type AsyncRecorder struct {
	inner   Recorder
	pool    *workerpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsyncRecorder 创建异步记录器
func NewAsyncRecorder(inner Recorder, pool *workerpool.Pool, timeout time.Duration) *AsyncRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncRecorder{
		inner:   inner,
		pool:    pool,
		timeout: timeout,
		logger:  slog.Default().With("component", "HistoryRecorder"),
	}
}

// Record 提交记录任务，队列满或已关闭时丢弃并记录日志（至多一次）
func (a *AsyncRecorder) Record(_ context.Context, result Result) error {
	if err := validate(result); err != nil {
		a.logger.Warn("Skipping match result", "roomCode", result.RoomCode, "error", err)
		return nil
	}

	ok := a.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.inner.Record(ctx, result); err != nil {
			a.logger.Error("Failed to record match result",
				"roomCode", result.RoomCode,
				"error", err)
			return
		}
		a.logger.Info("Match result recorded",
			"roomCode", result.RoomCode,
			"score1", result.Score1,
			"score2", result.Score2,
			"winnerId", result.WinnerID)
	})
	if !ok {
		a.logger.Warn("History queue full, dropping match result", "roomCode", result.RoomCode)
	}
	return nil
}

// ListByPlayer 直接查询底层存储
func (a *AsyncRecorder) ListByPlayer(ctx context.Context, playerID string, limit int) ([]Result, error) {
	return a.inner.ListByPlayer(ctx, playerID, limit)
}

// MemoryRecorder 未配置数据库时使用的进程内记录
type MemoryRecorder struct {
	mu      sync.RWMutex
	results []Result
	nextID  int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, result Result) error {
	if err := validate(result); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	result.ID = m.nextID
	m.results = append(m.results, result)
	return nil
}

// ListByPlayer 按结束时间倒序返回玩家参与的对局
func (m *MemoryRecorder) ListByPlayer(_ context.Context, playerID string, limit int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Result
	for _, r := range m.results {
		if r.Player1ID == playerID || r.Player2ID == playerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len 已记录数量
func (m *MemoryRecorder) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
