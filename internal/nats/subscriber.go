package nats

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// MessageHandler 消息处理器接口
type MessageHandler interface {
	// HandleRoomEvent 其他节点广播的房间事件，payload 为已编码的出站消息
	HandleRoomEvent(roomCode string, payload []byte)
	// HandleCommand 其他节点转发来的玩家输入
	HandleCommand(ctx context.Context, cmd Command)
}

// SubscriberConfig Worker 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量，同一房间的消息总是落在同一个 Worker 上
	BufferSize  int // 每个 Worker 的缓冲区大小
}

// MessageSubscriber 消息订阅器
type MessageSubscriber struct {
	nc       *nats.Conn
	nodeID   string
	handler  MessageHandler
	logger   *slog.Logger
	config   SubscriberConfig
	subs     []*nats.Subscription
	shards   []chan *nats.Msg
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewMessageSubscriber 创建消息订阅器
func NewMessageSubscriber(nc *nats.Conn, nodeID string, handler MessageHandler, config SubscriberConfig) *MessageSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}

	return &MessageSubscriber{
		nc:      nc,
		nodeID:  nodeID,
		handler: handler,
		logger:  slog.Default().With("component", "NATSSubscriber"),
		config:  config,
	}
}

// Start 启动订阅
func (s *MessageSubscriber) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.shards = make([]chan *nats.Msg, s.config.WorkerCount)
	for i := range s.shards {
		s.shards[i] = make(chan *nats.Msg, s.config.BufferSize)
		s.wg.Add(1)
		go s.worker(s.shards[i])
	}

	// 房间事件每个节点都要收到，不使用队列组
	eventSub, err := s.nc.Subscribe(SubjectRoomEventsAll, s.dispatch)
	if err != nil {
		s.cancel()
		return err
	}
	s.subs = append(s.subs, eventSub)

	cmdSubject := BuildNodeCommandSubject(s.nodeID)
	cmdSub, err := s.nc.Subscribe(cmdSubject, s.dispatch)
	if err != nil {
		_ = eventSub.Unsubscribe()
		s.cancel()
		return err
	}
	s.subs = append(s.subs, cmdSub)

	s.logger.Info("NATS subscriber started",
		"events", SubjectRoomEventsAll,
		"commands", cmdSubject,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

// dispatch 按房间码分片入队，保证同一房间的消息按序处理
func (s *MessageSubscriber) dispatch(msg *nats.Msg) {
	key := msg.Subject
	if code, ok := RoomCodeFromSubject(msg.Subject); ok {
		key = code
	}
	shard := s.shards[shardIndex(key, len(s.shards))]

	select {
	case shard <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("Message buffer full, dropping message", "subject", msg.Subject, "bufferSize", s.config.BufferSize)
	}
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// worker 工作协程
func (s *MessageSubscriber) worker(msgs <-chan *nats.Msg) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-msgs:
			s.handle(msg)
		}
	}
}

func (s *MessageSubscriber) handle(msg *nats.Msg) {
	if _, ok := RoomCodeFromSubject(msg.Subject); ok {
		var event RoomEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error("Failed to unmarshal room event", "subject", msg.Subject, "error", err)
			return
		}
		// 本节点发出的事件已经在本地投递过
		if event.Origin == s.nodeID {
			return
		}
		s.handler.HandleRoomEvent(event.RoomCode, event.Payload)
		return
	}

	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Error("Failed to unmarshal command", "subject", msg.Subject, "error", err)
		return
	}
	s.handler.HandleCommand(s.ctx, cmd)
}

// Stop 停止订阅
func (s *MessageSubscriber) Stop() error {
	s.stopOnce.Do(func() {
		for _, sub := range s.subs {
			if err := sub.Unsubscribe(); err != nil {
				s.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err)
			}
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("NATS subscriber stopped")
	})
	return nil
}

// GetBufferUsage 获取缓冲区使用情况（用于监控）
func (s *MessageSubscriber) GetBufferUsage() (current int, capacity int) {
	for _, shard := range s.shards {
		current += len(shard)
		capacity += cap(shard)
	}
	return current, capacity
}
