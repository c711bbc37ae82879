package task

import "sync"

// SlotCount 时间轮槽位数量，一圈为 60 个刻度
const SlotCount = 60

// slot 时间轮槽位
type slot struct {
	tasks map[string]*Task
}

// TimeWheel 单层时间轮
// 同一个任务 ID 在轮上只会出现一次，便于按 ID 删除
type TimeWheel struct {
	mu          sync.Mutex
	slots       [SlotCount]slot
	currentSlot int
	index       map[string]int // taskID -> 槽位
}

// NewTimeWheel 创建时间轮
func NewTimeWheel() *TimeWheel {
	tw := &TimeWheel{index: make(map[string]int)}
	for i := range tw.slots {
		tw.slots[i].tasks = make(map[string]*Task)
	}
	return tw
}

// Add 添加任务，已存在的同 ID 任务会被替换
func (tw *TimeWheel) Add(task *Task) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.removeLocked(task.ID)

	target := (tw.currentSlot + normalizeDelay(task.Delay)) % SlotCount
	tw.slots[target].tasks[task.ID] = task
	tw.index[task.ID] = target
}

// Remove 删除任务
func (tw *TimeWheel) Remove(taskID string) bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.removeLocked(taskID)
}

func (tw *TimeWheel) removeLocked(taskID string) bool {
	pos, ok := tw.index[taskID]
	if !ok {
		return false
	}
	delete(tw.slots[pos].tasks, taskID)
	delete(tw.index, taskID)
	return true
}

// Tick 推进一个刻度，取出到期任务
func (tw *TimeWheel) Tick() []*Task {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.currentSlot = (tw.currentSlot + 1) % SlotCount
	s := &tw.slots[tw.currentSlot]
	if len(s.tasks) == 0 {
		return nil
	}

	due := make([]*Task, 0, len(s.tasks))
	for id, task := range s.tasks {
		due = append(due, task)
		delete(tw.index, id)
	}
	s.tasks = make(map[string]*Task)
	return due
}

// Contains 任务是否在轮上
func (tw *TimeWheel) Contains(taskID string) bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	_, ok := tw.index[taskID]
	return ok
}

// CurrentSlot 当前槽位索引
func (tw *TimeWheel) CurrentSlot() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.currentSlot
}

// Len 轮上任务总数
func (tw *TimeWheel) Len() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return len(tw.index)
}
