package server

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"StudioFM/logger"
	"StudioFM/model"

	"github.com/gorilla/mux"
)

const subscribeTimeout = 10 * time.Second

// PlaylistResponse 来源歌单
type PlaylistResponse struct {
	Source model.Source  `json:"source"`
	Tracks []model.Track `json:"tracks"`
}

func (s *Server) handleContentPlaylist(w http.ResponseWriter, r *http.Request) {
	source, err := model.ParseSource(mux.Vars(r)["source"])
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, PlaylistResponse{
		Source: source,
		Tracks: s.content.Playlist(r.Context(), source),
	})
}

func (s *Server) handleContentTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := s.content.Track(r.Context(), id)
	if !ok {
		writeError(w, r, notFound("track", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SubscribeRequest 订阅通知
type SubscribeRequest struct {
	Email string `json:"email"`
}

// handleSubscribe 校验后立即返回，写库在后台完成，失败只记录日志
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid email", errBadRequest))
		return
	}

	email := addr.Address
	if s.subscribers != nil {
		s.background(func() {
			ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
			defer cancel()
			if err := s.subscribers.Create(ctx, email); err != nil {
				logger.Warn("保存订阅失败", logger.String("email", email), logger.ErrorField(err))
			}
		})
	} else {
		logger.Warn("订阅存储未配置，忽略订阅", logger.String("email", email))
	}
	w.WriteHeader(http.StatusAccepted)
}
