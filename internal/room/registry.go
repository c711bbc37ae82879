package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sudooom.pong/internal/game"
	"sudooom.pong/internal/session"
	"sudooom.pong/internal/task"
)

// Options 注册表配置
type Options struct {
	CacheTTL          time.Duration
	CleanupInterval   time.Duration
	FinishedRetention time.Duration
	InactiveTTL       time.Duration
}

func (o *Options) withDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 300 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 60 * time.Second
	}
	if o.FinishedRetention <= 0 {
		o.FinishedRetention = time.Hour
	}
	if o.InactiveTTL <= 0 {
		o.InactiveTTL = 10 * time.Minute
	}
}

// entry 单个房间，mu 串行化该房间的全部修改
type entry struct {
	mu         sync.Mutex
	state      *game.State
	lastActive time.Time
	deleted    bool
}

// Registry 房间注册表
// 内存保存本进程见过的房间，共享缓存（Redis）让多个进程看到同一份状态。
// 缓存不可用时记录日志并退化为单进程模式，不向调用方返回缓存错误。
//
// 使用示例：
//
//	registry := room.NewRegistry(cache, sessions, scheduler, opts)
//	state, created, err := registry.Create(ctx, code)
//	state, err = registry.Update(ctx, code, func(s *game.State) error { ... })
type Registry struct {
	rooms     sync.Map // roomCode -> *entry
	cache     Cache
	sessions  *session.Store
	scheduler *task.Scheduler
	opts      Options

	cleanupOnce sync.Once
	intN        func(int) int
	now         func() time.Time
	logger      *slog.Logger
}

// NewRegistry 创建房间注册表
// cache 为 nil 时只使用内存；scheduler 为 nil 时不启动清理任务
func NewRegistry(cache Cache, sessions *session.Store, scheduler *task.Scheduler, opts Options) *Registry {
	opts.withDefaults()
	return &Registry{
		cache:     cache,
		sessions:  sessions,
		scheduler: scheduler,
		opts:      opts,
		intN:      defaultIntN,
		now:       time.Now,
		logger:    slog.Default().With("component", "RoomRegistry"),
	}
}

// Sessions 房间所属的会话存储
func (r *Registry) Sessions() *session.Store {
	return r.sessions
}

// Create 创建房间，已存在时直接返回现有状态（幂等）
func (r *Registry) Create(ctx context.Context, roomCode string) (*game.State, bool, error) {
	r.ensureCleanup()

	if state, err := r.Get(ctx, roomCode); err == nil {
		return state, false, nil
	}

	fresh := &entry{state: game.NewState(roomCode), lastActive: r.now()}
	actual, loaded := r.rooms.LoadOrStore(roomCode, fresh)
	e := actual.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if loaded {
		return e.state.Clone(), false, nil
	}

	r.persist(ctx, e.state)
	r.logger.Info("Room created", "roomCode", roomCode)
	return e.state.Clone(), true, nil
}

// Get 获取房间状态副本
func (r *Registry) Get(ctx context.Context, roomCode string) (*game.State, error) {
	e, err := r.load(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, ErrRoomNotFound
	}
	return e.state.Clone(), nil
}

// Save 用给定状态覆盖房间并写入缓存
func (r *Registry) Save(ctx context.Context, state *game.State) {
	value, _ := r.rooms.LoadOrStore(state.RoomCode, &entry{state: state.Clone(), lastActive: r.now()})
	e := value.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = state.Clone()
	e.lastActive = r.now()
	e.deleted = false
	r.persist(ctx, e.state)
}

// Update 在房间锁内修改状态并保存，fn 返回错误时不保存
func (r *Registry) Update(ctx context.Context, roomCode string, fn func(*game.State) error) (*game.State, error) {
	e, err := r.load(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, ErrRoomNotFound
	}

	if err := fn(e.state); err != nil {
		return nil, err
	}

	e.lastActive = r.now()
	r.persist(ctx, e.state)
	return e.state.Clone(), nil
}

// Reload 从共享缓存刷新内存中的房间
// 取得房间租约的进程在开始驱动对局前调用，保证从其他进程的最新状态继续
func (r *Registry) Reload(ctx context.Context, roomCode string) (*game.State, error) {
	if r.cache != nil {
		state, err := r.fetch(ctx, roomCode)
		switch {
		case err == nil:
			value, _ := r.rooms.LoadOrStore(roomCode, &entry{state: state, lastActive: r.now()})
			e := value.(*entry)
			e.mu.Lock()
			e.state = state
			e.lastActive = r.now()
			e.deleted = false
			clone := e.state.Clone()
			e.mu.Unlock()
			return clone, nil
		case !errors.Is(err, ErrCacheMiss):
			r.logger.Warn("Failed to reload room from cache, using memory copy",
				"roomCode", roomCode,
				"error", err)
		}
	}
	return r.Get(ctx, roomCode)
}

// Delete 删除房间及其全部会话
func (r *Registry) Delete(ctx context.Context, roomCode string) {
	if value, ok := r.rooms.LoadAndDelete(roomCode); ok {
		e := value.(*entry)
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}

	if r.cache != nil {
		if err := r.cache.Del(ctx, roomCode); err != nil {
			r.logger.Warn("Failed to delete room from cache", "roomCode", roomCode, "error", err)
		}
	}

	if r.sessions != nil {
		r.sessions.DeleteRoom(roomCode)
	}

	r.logger.Info("Room deleted", "roomCode", roomCode)
}

// Count 本进程内存中的房间数
func (r *Registry) Count() int {
	count := 0
	r.rooms.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// load 取得房间条目：先查内存，未命中再查缓存
func (r *Registry) load(ctx context.Context, roomCode string) (*entry, error) {
	if value, ok := r.rooms.Load(roomCode); ok {
		return value.(*entry), nil
	}
	if r.cache == nil {
		return nil, ErrRoomNotFound
	}

	state, err := r.fetch(ctx, roomCode)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("Room cache unavailable", "roomCode", roomCode, "error", err)
		}
		return nil, ErrRoomNotFound
	}

	actual, _ := r.rooms.LoadOrStore(roomCode, &entry{state: state, lastActive: r.now()})
	return actual.(*entry), nil
}

// fetch 从缓存读取并宽松解码
// 损坏的快照会被删除；版本过新的快照（新版本进程写入）保留，只当作未命中
func (r *Registry) fetch(ctx context.Context, roomCode string) (*game.State, error) {
	data, err := r.cache.Get(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	state, err := game.Decode(data, game.Lenient)
	if err == nil {
		return state, nil
	}

	if errors.Is(err, game.ErrUnsupportedSchema) {
		r.logger.Warn("Room snapshot has unsupported schema", "roomCode", roomCode, "error", err)
		return nil, ErrCacheMiss
	}

	r.logger.Error("Corrupt room snapshot, discarding", "roomCode", roomCode, "error", err)
	if delErr := r.cache.Del(ctx, roomCode); delErr != nil {
		r.logger.Warn("Failed to delete corrupt snapshot", "roomCode", roomCode, "error", delErr)
	}
	return nil, ErrCacheMiss
}

// persist 写入缓存，失败只记录日志
func (r *Registry) persist(ctx context.Context, state *game.State) {
	if r.cache == nil {
		return
	}
	data, err := game.Encode(state)
	if err != nil {
		r.logger.Error("Failed to encode room snapshot", "roomCode", state.RoomCode, "error", err)
		return
	}
	if err := r.cache.Set(ctx, state.RoomCode, data, r.opts.CacheTTL); err != nil {
		r.logger.Warn("Failed to save room to cache", "roomCode", state.RoomCode, "error", err)
	}
}
