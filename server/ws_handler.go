package server

import (
	"context"
	"encoding/json"
	"net/http"

	"StudioFM/core/hub"
	"StudioFM/logger"
)

// handleWebSocket 媒体控制面：推送状态，接收传输命令
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	t := s.currentTab(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := hub.NewClient(s.hub, conn, sessionID)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), s.handleCommand)

	// 连接建立后先推送一次完整状态
	if data, err := json.Marshal(t.Player.State()); err == nil {
		client.SendMessage(&hub.WSMessage{Type: hub.MsgTypeState, SessionID: sessionID, Data: data})
	}

	logger.Info("媒体控制面连接建立", logger.String("session", sessionID))
}

// handleCommand 在标签页锁内执行入站命令，失败时回复 error 消息
func (s *Server) handleCommand(ctx context.Context, client *hub.Client, msg *hub.WSMessage) {
	t := s.tabs.Get(ctx, client.SessionID)
	err := t.Do(func() error { return hub.Dispatch(t.Player, msg) })
	if err == nil {
		return
	}

	logger.Debug("媒体命令执行失败",
		logger.String("session", client.SessionID),
		logger.String("type", string(msg.Type)),
		logger.ErrorField(err))
	data, _ := json.Marshal(ErrorResponse{Error: err.Error()})
	client.SendMessage(&hub.WSMessage{Type: hub.MsgTypeError, SessionID: client.SessionID, Data: data})
}
