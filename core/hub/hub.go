package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"StudioFM/logger"
	"StudioFM/model"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypePing  MessageType = "ping"  // 心跳
	MsgTypePong  MessageType = "pong"  // 心跳响应
	MsgTypeError MessageType = "error" // 错误消息
	MsgTypeState MessageType = "state" // 播放器状态推送

	// 媒体控制命令
	MsgTypePlay  MessageType = "play"
	MsgTypePause MessageType = "pause"
	MsgTypeSeek  MessageType = "seek"
	MsgTypeNext  MessageType = "next"
	MsgTypePrev  MessageType = "prev"
)

const (
	sendBuffer   = 64
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SeekData 跳转命令数据
type SeekData struct {
	Position float64 `json:"position"`
}

// Client WebSocket 客户端，同一会话可以有多个连接。
// Send 从不关闭，注销通过 closed 通知写循环退出。
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient 创建客户端
func NewClient(h *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		SessionID: sessionID,
		closed:    make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Hub 按会话分组的媒体控制面推送中心
type Hub struct {
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	stop sync.Once
}

type broadcastMessage struct {
	sessionID string
	message   []byte
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.broadcastToSession(msg)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，可重复调用
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true

	logger.Info("媒体控制连接已注册",
		logger.String("session", client.SessionID),
		logger.Int("connections", len(h.sessions[client.SessionID])))
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	client.close()
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
	logger.Info("媒体控制连接已注销", logger.String("session", client.SessionID))
}

func (h *Hub) broadcastToSession(msg *broadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[msg.sessionID]))
	for c := range h.sessions[msg.sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.Send <- msg.message:
		default:
			// 发送缓冲区满，移除客户端
			h.mu.Lock()
			h.removeClient(c)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for c := range clients {
			c.close()
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast 推送到会话的全部连接；队列满时丢弃，状态推送总是完整快照
func (h *Hub) Broadcast(sessionID string, message []byte) {
	select {
	case h.broadcast <- &broadcastMessage{sessionID: sessionID, message: message}:
	case <-h.done:
	default:
		logger.Warn("推送队列已满，丢弃消息", logger.String("session", sessionID))
	}
}

// PublishState 推送播放器状态
func (h *Hub) PublishState(sessionID string, state model.PlayerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(&WSMessage{
		Type:      MsgTypeState,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, msg)
	return nil
}

// ClientCount 会话当前连接数
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Publisher 绑定到单个会话的媒体控制面
type Publisher struct {
	hub       *Hub
	sessionID string
}

func (h *Hub) Publisher(sessionID string) *Publisher {
	return &Publisher{hub: h, sessionID: sessionID}
}

func (p *Publisher) Publish(state model.PlayerState) {
	if err := p.hub.PublishState(p.sessionID, state); err != nil {
		logger.Warn("序列化播放器状态失败", logger.String("session", p.sessionID), logger.ErrorField(err))
	}
}

// Commands 媒体控制命令的执行方，*player.Controller 满足该接口
type Commands interface {
	Play() error
	Pause()
	Seek(position float64) error
	Next() (model.Track, error)
	Previous() (model.Track, error)
}

var ErrUnknownCommand = errors.New("unknown command")

// Dispatch 把入站命令转给播放器
func Dispatch(cmd Commands, msg *WSMessage) error {
	switch msg.Type {
	case MsgTypePlay:
		return cmd.Play()
	case MsgTypePause:
		cmd.Pause()
		return nil
	case MsgTypeSeek:
		var d SeekData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("invalid seek data: %w", err)
		}
		return cmd.Seek(d.Position)
	case MsgTypeNext:
		_, err := cmd.Next()
		return err
	case MsgTypePrev:
		_, err := cmd.Previous()
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
	}
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环，ping 在这里直接回复，其余交给 handler
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format",
				logger.ErrorField(err),
				logger.String("session", c.SessionID))
			continue
		}

		if msg.Type == MsgTypePing {
			c.SendMessage(&WSMessage{Type: MsgTypePong})
			continue
		}
		handler(ctx, c, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端，缓冲区满时丢弃
func (c *Client) SendMessage(msg *WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.closed:
	case c.Send <- data:
	default:
	}
}
