package task

import (
	"context"
	"time"
)

// Func 任务执行函数，target 为操作对象（房间码等）
type Func func(ctx context.Context, target string) error

// Task 时间轮任务
type Task struct {
	ID        string    // 任务唯一ID，同 ID 重复添加会替换旧任务
	Target    string    // 操作对象标识
	Delay     int       // 延迟刻度数 (1-60)
	Repeat    bool      // 执行完成后按相同延迟重新入轮
	Fn        Func      // 执行函数
	CreatedAt time.Time // 创建时间
}

// NewTask 创建一次性任务
func NewTask(id, target string, delay int, fn Func) *Task {
	return &Task{
		ID:        id,
		Target:    target,
		Delay:     normalizeDelay(delay),
		Fn:        fn,
		CreatedAt: time.Now(),
	}
}

// NewRepeatingTask 创建周期任务
func NewRepeatingTask(id, target string, delay int, fn Func) *Task {
	t := NewTask(id, target, delay, fn)
	t.Repeat = true
	return t
}

// Execute 执行任务
func (t *Task) Execute(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, t.Target)
}

func normalizeDelay(delay int) int {
	if delay < 1 || delay > SlotCount {
		return 1
	}
	return delay
}
