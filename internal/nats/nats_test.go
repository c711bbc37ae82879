package nats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.pong/internal/config"
	"sudooom.pong/internal/connection"
	"sudooom.pong/internal/protocol"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "pong.room.ABC123.events", BuildRoomEventsSubject("ABC123"))
	assert.Equal(t, "pong.node.pong-2.cmd", BuildNodeCommandSubject("pong-2"))

	code, ok := RoomCodeFromSubject("pong.room.ABC123.events")
	assert.True(t, ok)
	assert.Equal(t, "ABC123", code)

	for _, subject := range []string{"pong.node.pong-2.cmd", "pong.room..events", "pong.room.a.b.events"} {
		_, ok := RoomCodeFromSubject(subject)
		assert.False(t, ok, subject)
	}
}

func TestShardIndex_Stable(t *testing.T) {
	assert.Equal(t, shardIndex("ABC123", 8), shardIndex("ABC123", 8))
	for _, key := range []string{"A", "B", "ABC123", "ZZZZZZ"} {
		idx := shardIndex(key, 8)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 8)
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (p *fakePublisher) PublishRoomEvent(_ string, msg protocol.Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func newClientConn(t *testing.T, m *connection.Manager, room, playerID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := connection.New(ws, connection.Options{})
		conn.Bind(room, playerID, playerID, 1)
		m.Add(conn)
		m.BindRoom(conn.ID(), room)
		t.Cleanup(conn.Close)
		close(ready)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	<-ready
	return client
}

func readType(t *testing.T, client *websocket.Conn) string {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m["type"].(string)
}

func TestFanout_LocalAndRemote(t *testing.T) {
	m := connection.NewManager()
	client := newClientConn(t, m, "ABC123", "u1")
	pub := &fakePublisher{}
	f := NewFanout(m, pub)

	sent := f.Broadcast("ABC123", protocol.GamePaused{PlayerNumber: 1})
	assert.Equal(t, 1, sent)
	assert.Equal(t, protocol.TypeGamePaused, readType(t, client))
	assert.Len(t, pub.events, 1)

	f.HandleRoomEvent("ABC123", []byte(`{"type":"game_resumed","player_number":2}`))
	assert.Equal(t, protocol.TypeGameResumed, readType(t, client))
}

func TestFanout_LocalOnly(t *testing.T) {
	m := connection.NewManager()
	f := NewFanout(m, nil)
	assert.Zero(t, f.Broadcast("NOBODY", protocol.GamePaused{}))
}

type recordingHandler struct {
	events   chan RoomEvent
	commands chan Command
}

func (h *recordingHandler) HandleRoomEvent(roomCode string, payload []byte) {
	h.events <- RoomEvent{RoomCode: roomCode, Payload: payload}
}

func (h *recordingHandler) HandleCommand(_ context.Context, cmd Command) {
	h.commands <- cmd
}

// 需要本地 NATS 服务，未配置 NATS_URL 时跳过
func TestPublishSubscribe_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("跳过集成测试: 未设置 NATS_URL")
	}

	nodeA, err := NewClient(config.NATSConfig{URL: url, MaxReconnects: 1, ReconnectWait: time.Second}, "node-a")
	if err != nil {
		t.Skipf("跳过集成测试: NATS 不可用: %v", err)
	}
	defer nodeA.Close()
	nodeB, err := NewClient(config.NATSConfig{URL: url, MaxReconnects: 1, ReconnectWait: time.Second}, "node-b")
	require.NoError(t, err)
	defer nodeB.Close()

	handlerA := &recordingHandler{events: make(chan RoomEvent, 4), commands: make(chan Command, 4)}
	handlerB := &recordingHandler{events: make(chan RoomEvent, 4), commands: make(chan Command, 4)}
	subA := NewMessageSubscriber(nodeA.Conn(), "node-a", handlerA, SubscriberConfig{WorkerCount: 2})
	subB := NewMessageSubscriber(nodeB.Conn(), "node-b", handlerB, SubscriberConfig{WorkerCount: 2})
	require.NoError(t, subA.Start(context.Background()))
	require.NoError(t, subB.Start(context.Background()))
	defer subA.Stop()
	defer subB.Stop()
	require.NoError(t, nodeA.Conn().Flush())
	require.NoError(t, nodeB.Conn().Flush())

	pubA := NewMessagePublisher(nodeA.Conn(), "node-a")
	require.NoError(t, pubA.PublishRoomEvent("ABC123", protocol.GamePaused{PlayerNumber: 1}))
	require.NoError(t, pubA.SendCommand("node-b", Command{RoomCode: "ABC123", PlayerID: "u1", Payload: json.RawMessage(`{"type":"pause_game"}`)}))

	select {
	case ev := <-handlerB.events:
		assert.Equal(t, "ABC123", ev.RoomCode)
		assert.Contains(t, string(ev.Payload), `"game_paused"`)
	case <-time.After(2 * time.Second):
		t.Fatal("room event not received")
	}
	select {
	case cmd := <-handlerB.commands:
		assert.Equal(t, "node-a", cmd.Origin)
		assert.Equal(t, "u1", cmd.PlayerID)
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}

	// 自己发出的事件不回送
	select {
	case <-handlerA.events:
		t.Fatal("origin node should skip its own event")
	case <-time.After(200 * time.Millisecond):
	}
}
