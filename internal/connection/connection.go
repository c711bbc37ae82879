package connection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sudooom.pong/internal/protocol"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("connection send buffer full")
)

var connIDCounter int64

const sendBufferSize = 256

// Options 连接参数
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadLimit    int64
}

func (o *Options) withDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
}

// Connection 一个客户端 websocket 连接
// 读由 ReadLoop 所在协程完成，写统一经过 writeChan 交给 writeLoop
type Connection struct {
	id   int64
	ws   *websocket.Conn
	opts Options

	mu           sync.RWMutex
	roomCode     string
	playerID     string
	username     string
	playerNumber int
	lastActive   atomic.Int64

	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
}

// New 包装已完成握手的 websocket 连接并启动写协程
func New(ws *websocket.Conn, opts Options) *Connection {
	opts.withDefaults()
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		ws:         ws,
		opts:       opts,
		logger:     slog.Default().With("component", "Connection", "connId", id),
		writeChan:  make(chan []byte, sendBufferSize),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.UpdateActive()
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

// Bind 绑定房间与玩家身份（加入对局后调用）
func (c *Connection) Bind(roomCode, playerID, username string, playerNumber int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = roomCode
	c.playerID = playerID
	c.username = username
	c.playerNumber = playerNumber
}

func (c *Connection) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// PlayerNumber 槽位，0 为观战者
func (c *Connection) PlayerNumber() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerNumber
}

// Send 发送原始帧
// 发送缓冲区满说明客户端跟不上，直接关闭连接，由周期整帧在重连后收敛
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		c.logger.Warn("Send buffer full, closing slow connection", "playerId", c.PlayerID())
		c.Close()
		return ErrSlowConsumer
	}
}

// SendMessage 编码并发送消息
func (c *Connection) SendMessage(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// ReadLoop 阻塞读取消息直到连接关闭，每条消息交给 handle
func (c *Connection) ReadLoop(handle func(data []byte)) error {
	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.UpdateActive()
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		c.UpdateActive()
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		handle(data)
	}
}

// writeLoop 唯一的写协程，连接关闭时负责把排队消息写完并关闭底层连接
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.writeChan:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closeChan:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// flush 尽量把已排队的消息（例如 game_over）发出去
func (c *Connection) flush() {
	for {
		select {
		case data := <-c.writeChan:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
	})
}

// Done 连接关闭时关闭的通道
func (c *Connection) Done() <-chan struct{} {
	return c.closeChan
}

// UpdateActive 刷新最后活跃时间
func (c *Connection) UpdateActive() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActiveTime 最后活跃时间
func (c *Connection) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
