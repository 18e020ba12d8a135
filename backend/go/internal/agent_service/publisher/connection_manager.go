package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// wsConn 串行化同一连接上的写操作。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ConnectionManager 管理每个用户的 WebSocket 连接，一个用户可以同时打开多个连接。
type ConnectionManager struct {
	connections map[string]map[*websocket.Conn]*wsConn
	mu          sync.RWMutex
}

// NewConnectionManager 创建空的连接管理器。
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{connections: make(map[string]map[*websocket.Conn]*wsConn)}
}

// Add 登记用户的一个连接。
func (m *ConnectionManager) Add(ownerID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[ownerID] == nil {
		m.connections[ownerID] = make(map[*websocket.Conn]*wsConn)
	}
	m.connections[ownerID][conn] = &wsConn{conn: conn}
}

// Remove 关闭并移除连接，重复调用无副作用。
func (m *ConnectionManager) Remove(ownerID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := m.connections[ownerID]
	if _, ok := conns[conn]; !ok {
		return
	}
	conn.Close()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(m.connections, ownerID)
	}
}

// Count 返回用户当前的连接数。
func (m *ConnectionManager) Count(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[ownerID])
}

func (m *ConnectionManager) snapshot(ownerID string) []*wsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*wsConn, 0, len(m.connections[ownerID]))
	for _, c := range m.connections[ownerID] {
		out = append(out, c)
	}
	return out
}

// SendMessage 向用户的所有连接发送消息，返回成功发送的连接数。写失败的连接会被移除。
func (m *ConnectionManager) SendMessage(ownerID string, message []byte) int {
	sent := 0
	for _, c := range m.snapshot(ownerID) {
		if err := c.write(message); err != nil {
			m.Remove(ownerID, c.conn)
			continue
		}
		sent++
	}
	return sent
}

// Publish 实现 Sink，把事件推送给事件所属用户。
func (m *ConnectionManager) Publish(ctx context.Context, event models.TurnEvent) {
	if m.Count(event.OwnerID) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.New("turn_events", event.ThreadID, event.OwnerID).Err(err).Error("序列化轮次事件失败")
		return
	}
	m.SendMessage(event.OwnerID, data)
}

// CloseAll 关闭所有连接，用于服务退出。
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for owner, conns := range m.connections {
		for conn := range conns {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			conn.Close()
		}
		delete(m.connections, owner)
	}
}
