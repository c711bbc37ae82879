package workerpool

import (
	"context"
	"log/slog"
	"sync"
)

// Task 定义任务函数类型
type Task func()

// Pool Worker Pool 实现，用于对局结束后的异步写库等不阻塞帧循环的工作
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

// New 创建一个新的 Worker Pool
// workers: worker 数量
// queueSize: 任务队列大小
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "WorkerPool"),
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

// worker 工作协程，关闭时先把队列里剩余的任务做完
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panic recovered",
				"worker_id", id,
				"panic", r)
		}
	}()
	task()
}

// Submit 提交任务，队列满时阻塞直到有空位或 Pool 关闭
func (p *Pool) Submit(task Task) (ok bool) {
	defer func() {
		// Shutdown 与 Submit 并发时队列可能已关闭
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		return true
	}
}

// TrySubmit 尝试提交任务，如果队列满了立即返回 false
func (p *Pool) TrySubmit(task Task) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Pending 队列中等待执行的任务数
func (p *Pool) Pending() int {
	return len(p.taskQueue)
}

// Shutdown 优雅关闭 Worker Pool，等待已入队的任务完成
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.cancel()
		close(p.taskQueue)
		p.wg.Wait()
		p.logger.Info("Worker pool shutdown completed")
	})
}
