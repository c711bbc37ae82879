package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool 执行到期任务的工作协程池
type WorkerPool struct {
	workerCount int
	taskChan    chan *Task
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger

	// done 每个任务执行结束后回调（无论成功失败），调度器用它重排周期任务
	done func(*Task)
}

// NewWorkerPool 创建工作协程池
func NewWorkerPool(workerCount int, done func(*Task)) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		taskChan:    make(chan *Task, workerCount*4),
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default().With("component", "TaskWorkerPool"),
		done:        done,
	}
}

// Start 启动工作协程
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.logger.Info("Task worker pool started", "workerCount", wp.workerCount)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task := <-wp.taskChan:
			if task == nil {
				continue
			}
			wp.execute(id, task)
			if wp.done != nil {
				wp.done(task)
			}
		}
	}
}

// execute 执行任务，panic 只记录不扩散
func (wp *WorkerPool) execute(workerID int, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("Task panic recovered",
				"workerID", workerID,
				"taskID", task.ID,
				"target", task.Target,
				"panic", r)
		}
	}()

	if err := task.Execute(wp.ctx); err != nil {
		wp.logger.Error("Task failed",
			"workerID", workerID,
			"taskID", task.ID,
			"target", task.Target,
			"error", err)
	}
}

// Submit 提交任务，通道满时阻塞等待
func (wp *WorkerPool) Submit(task *Task) bool {
	select {
	case wp.taskChan <- task:
		return true
	case <-wp.ctx.Done():
		return false
	default:
	}

	wp.logger.Warn("Task channel full, submit will block", "taskID", task.ID)
	select {
	case wp.taskChan <- task:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Stop 停止工作协程池，正在执行的任务会执行完
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Task worker pool stopped")
}
