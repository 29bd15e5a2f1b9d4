package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"StudioFM/core/artwork"
)

// ArtworkResponse Found 为 false 时前端使用静态缩略图
type ArtworkResponse struct {
	URL string `json:"url"`
	artwork.Entry
	Cached bool `json:"cached"`
}

// handleArtwork 命中缓存直接返回，否则同步提取。
// 只处理本会话持有或内容库收录的音频地址，缓存由所有会话共享。
func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	audioURL := r.URL.Query().Get("url")
	u, err := url.Parse(audioURL)
	if audioURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, r, fmt.Errorf("%w: url must be an absolute http(s) address", errBadRequest))
		return
	}
	if !s.knownAudio(r, audioURL) {
		writeError(w, r, notFound("track with audio url", audioURL))
		return
	}

	if entry, ok := s.artwork.Peek(audioURL); ok {
		writeJSON(w, http.StatusOK, ArtworkResponse{URL: audioURL, Entry: entry, Cached: true})
		return
	}

	// 提取结果会被合并并缓存，客户端断开不应取消共享的下载
	dataURL, found := s.artwork.Extract(context.WithoutCancel(r.Context()), audioURL)
	writeJSON(w, http.StatusOK, ArtworkResponse{
		URL:   audioURL,
		Entry: artwork.Entry{DataURL: dataURL, Found: found},
	})
}

func (s *Server) knownAudio(r *http.Request, audioURL string) bool {
	t := s.currentTab(r)
	var held bool
	t.Do(func() error {
		held = t.Holds(audioURL)
		return nil
	})
	return held || s.content.Known(r.Context(), audioURL)
}

func (s *Server) handleArtworkClear(w http.ResponseWriter, r *http.Request) {
	s.artwork.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
