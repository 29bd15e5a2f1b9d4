package server

import (
	"fmt"
	"net/http"
	"strconv"

	"StudioFM/core/tab"
	"StudioFM/model"

	"github.com/gorilla/mux"
)

const defaultUpcoming = 5

// LoadRequest 载入来源歌单
type LoadRequest struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
}

// IndexRequest 按位置操作
type IndexRequest struct {
	Index int `json:"index"`
}

type seekRequest struct {
	Position float64 `json:"position"`
}

type durationRequest struct {
	Duration float64 `json:"duration"`
}

type shuffleRequest struct {
	Enabled bool `json:"enabled"`
}

// UpcomingResponse 接下来播放的曲目
type UpcomingResponse struct {
	Tracks []model.Track `json:"tracks"`
}

// withTab 在标签页锁内执行 fn，成功后返回播放器状态
func (s *Server) withTab(w http.ResponseWriter, r *http.Request, fn func(t *tab.Tab) error) {
	t := s.currentTab(r)
	if err := t.Do(func() error { return fn(t) }); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Player.State())
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	s.withTab(w, r, func(*tab.Tab) error { return nil })
}

// handleLoad 来源为 dynamic 时从会话歌单载入，其余来源读取内容库
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	source, err := model.ParseSource(req.Source)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var tracks []model.Track
	if source != model.SourceDynamic {
		tracks = s.content.Playlist(r.Context(), source)
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		if source == model.SourceDynamic {
			return t.Playlist.PlayFrom(req.Index)
		}
		if err := t.Player.Load(tracks, req.Index, source); err != nil {
			return err
		}
		t.Player.Show()
		return nil
	})
}

func (s *Server) handleEnterRadio(w http.ResponseWriter, r *http.Request) {
	tracks := s.content.Playlist(r.Context(), model.SourceRadio)
	s.withTab(w, r, func(t *tab.Tab) error {
		return t.Player.EnterRadioMode(tracks)
	})
}

func (s *Server) handleExitRadio(w http.ResponseWriter, r *http.Request) {
	s.withTab(w, r, func(t *tab.Tab) error {
		t.Player.ExitRadioMode()
		return nil
	})
}

func (s *Server) handlePlayAt(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		_, err := t.Player.PlayAt(req.Index)
		return err
	})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		return t.Player.Seek(req.Position)
	})
}

// handleDuration 前端音频元素加载元数据后上报时长
func (s *Server) handleDuration(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Duration < 0 {
		writeError(w, r, fmt.Errorf("%w: negative duration", errBadRequest))
		return
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		t.Player.SetDuration(req.Duration)
		return nil
	})
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		t.Player.SetShuffle(req.Enabled)
		return nil
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	count := defaultUpcoming
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: invalid count %q", errBadRequest, raw))
			return
		}
		count = n
	}

	t := s.currentTab(r)
	var tracks []model.Track
	t.Do(func() error {
		tracks = t.Player.Upcoming(count)
		return nil
	})
	if tracks == nil {
		tracks = []model.Track{}
	}
	writeJSON(w, http.StatusOK, UpcomingResponse{Tracks: tracks})
}

// handlePlayerAction 无参数的传输与可见性操作
func (s *Server) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	s.withTab(w, r, func(t *tab.Tab) error {
		p := t.Player
		switch action {
		case "next":
			_, err := p.Next()
			return err
		case "previous":
			_, err := p.Previous()
			return err
		case "ended":
			_, err := p.TrackEnded()
			return err
		case "play":
			return p.Play()
		case "pause":
			p.Pause()
		case "show":
			p.Show()
		case "hide":
			p.Hide()
		case "minimize":
			p.Minimize()
		case "expand":
			p.Expand()
		case "close":
			p.CloseCompletely()
		default:
			return fmt.Errorf("%w: unknown action %q", errBadRequest, action)
		}
		return nil
	})
}
