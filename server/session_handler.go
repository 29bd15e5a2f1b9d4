package server

import (
	"net/http"

	"StudioFM/core/tab"
	"StudioFM/model"

	"github.com/gorilla/mux"
)

// SessionPlaylistResponse 会话歌单
type SessionPlaylistResponse struct {
	Tracks []model.Track `json:"tracks"`
}

// AddTrackResponse Added 为 false 表示歌单中已有该曲目
type AddTrackResponse struct {
	Added  bool          `json:"added"`
	Tracks []model.Track `json:"tracks"`
}

// PreviewResponse 试听播放器状态
type PreviewResponse struct {
	ID      string      `json:"id"`
	Track   model.Track `json:"track"`
	Playing bool        `json:"playing"`
}

func (s *Server) handleSessionPlaylist(w http.ResponseWriter, r *http.Request) {
	t := s.currentTab(r)
	writeJSON(w, http.StatusOK, SessionPlaylistResponse{Tracks: t.Playlist.Tracks()})
}

// handleSessionAdd 请求体只有 id 时从内容库补全曲目
func (s *Server) handleSessionAdd(w http.ResponseWriter, r *http.Request) {
	var track model.Track
	if err := decodeJSON(r, &track); err != nil {
		writeError(w, r, err)
		return
	}
	if track.ID != "" && track.AudioURL == "" {
		full, ok := s.content.Track(r.Context(), track.ID)
		if !ok {
			writeError(w, r, notFound("track", track.ID))
			return
		}
		track = full
	}

	t := s.currentTab(r)
	var added bool
	err := t.Do(func() error {
		var err error
		added, err = t.Playlist.Add(r.Context(), track)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, AddTrackResponse{Added: added, Tracks: t.Playlist.Tracks()})
}

func (s *Server) handleSessionRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t := s.currentTab(r)
	var removed bool
	err := t.Do(func() error {
		var err error
		removed, err = t.Playlist.Remove(r.Context(), id)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, notFound("track", id))
		return
	}
	writeJSON(w, http.StatusOK, SessionPlaylistResponse{Tracks: t.Playlist.Tracks()})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	t := s.currentTab(r)
	if err := t.Do(func() error { return t.Playlist.Clear(r.Context()) }); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionPlay(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withTab(w, r, func(t *tab.Tab) error {
		return t.Playlist.PlayFrom(req.Index)
	})
}

// handlePreviewPlay 曲目卡片上的试听，播放前暂停其他播放端
func (s *Server) handlePreviewPlay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, ok := s.content.Track(r.Context(), id)
	if !ok {
		writeError(w, r, notFound("track", id))
		return
	}

	t := s.currentTab(r)
	var resp PreviewResponse
	t.Do(func() error {
		p := t.Preview(track)
		p.Play()
		resp = PreviewResponse{ID: p.ID(), Track: p.Track(), Playing: p.Playing()}
		return nil
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewPause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t := s.currentTab(r)
	var (
		resp  PreviewResponse
		found bool
	)
	t.Do(func() error {
		p, ok := t.LookupPreview(id)
		if !ok {
			return nil
		}
		found = true
		p.Pause()
		resp = PreviewResponse{ID: p.ID(), Track: p.Track(), Playing: p.Playing()}
		return nil
	})
	if !found {
		writeError(w, r, notFound("preview", id))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t := s.currentTab(r)
	var closed bool
	t.Do(func() error {
		closed = t.ClosePreview(id)
		return nil
	})
	if !closed {
		writeError(w, r, notFound("preview", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
