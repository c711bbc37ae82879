package snowflake

import (
	"strconv"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	// 位数分配
	nodeBits     = 10
	sequenceBits = 12

	// 最大值
	maxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	// 位移
	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits
)

// ID 雪花ID，用作对局记录主键
type ID int64

// String 转换为字符串
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 转换为 int64
func (id ID) Int64() int64 {
	return int64(id)
}

// Time 生成 ID 时的毫秒时间
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timestampShift) + epoch)
}

// Node 节点号
func (id ID) Node() int64 {
	return (int64(id) >> nodeShift) & maxNodeID
}

// Node 雪花ID生成器节点
type Node struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastTime int64
	now      func() int64
}

// NewNode 创建雪花ID生成器，超出范围的节点号回落为 1
func NewNode(nodeID int64) *Node {
	if nodeID < 0 || nodeID > maxNodeID {
		nodeID = 1
	}
	return &Node{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// NodeIDFromString 由节点名推导节点号（如 pong-3 → 3），无法解析时返回 1
func NodeIDFromString(name string) int64 {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return 1
	}
	n, err := strconv.ParseInt(name[start:end], 10, 64)
	if err != nil || n > maxNodeID {
		return 1
	}
	return n
}

// Generate 生成雪花ID
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()

	if now <= n.lastTime {
		// 同一毫秒或时钟回拨，沿用上次时间继续递增序号
		now = n.lastTime
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 序号用尽，等待下一毫秒
			for now <= n.lastTime {
				now = n.now()
			}
		}
	} else {
		n.sequence = 0
	}

	n.lastTime = now

	id := ((now - epoch) << timestampShift) |
		(n.nodeID << nodeShift) |
		n.sequence

	return ID(id)
}
