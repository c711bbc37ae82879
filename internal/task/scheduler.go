package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNotRunning     = errors.New("scheduler is not running")
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrInvalidTask    = errors.New("task must have an id")
)

// Scheduler 任务调度器
// 每个刻度推进一次时间轮，到期任务交给工作协程池执行
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	tick       time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// NewScheduler 创建调度器，tick 为一个刻度的时长（默认 1 秒）
func NewScheduler(workerCount int, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		wheel:  NewTimeWheel(),
		tick:   tick,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("component", "TaskScheduler"),
	}
	s.workerPool = NewWorkerPool(workerCount, s.afterRun)
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.runningMu.Unlock()

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("Task scheduler started", "tick", s.tick)
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, task := range s.wheel.Tick() {
				if !s.workerPool.Submit(task) {
					return
				}
			}
		}
	}
}

// afterRun 周期任务执行完后重新入轮
func (s *Scheduler) afterRun(task *Task) {
	if !task.Repeat {
		return
	}
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if s.running {
		s.wheel.Add(task)
	}
}

// Stop 停止调度器，未到期的任务被丢弃
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.workerPool.Stop()

	s.logger.Info("Task scheduler stopped", "pending", s.wheel.Len())
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return ErrNotRunning
	}
	if task == nil || task.ID == "" {
		return ErrInvalidTask
	}

	s.wheel.Add(task)
	s.logger.Debug("Task added",
		"taskID", task.ID,
		"target", task.Target,
		"delay", task.Delay,
		"repeat", task.Repeat)
	return nil
}

// RemoveTask 删除任务，返回任务是否还在轮上
// 正在执行中的周期任务删除后仍会被重新入轮，需要由任务自身判断退出
func (s *Scheduler) RemoveTask(taskID string) bool {
	return s.wheel.Remove(taskID)
}

// HasTask 任务是否在轮上等待
func (s *Scheduler) HasTask(taskID string) bool {
	return s.wheel.Contains(taskID)
}

// IsRunning 调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	return s.running
}

// Stats 调度器统计信息
func (s *Scheduler) Stats() map[string]any {
	return map[string]any{
		"running":     s.IsRunning(),
		"currentSlot": s.wheel.CurrentSlot(),
		"pending":     s.wheel.Len(),
		"workerCount": s.workerPool.workerCount,
	}
}
