package content

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"

	"StudioFM/logger"
	"StudioFM/model"
	"StudioFM/repository"
)

//go:embed fallback.json
var fallbackJSON []byte

// Service 内容库门面。内容库失败不向上传播：
// radio 与 library 回退到内置曲目，其他来源返回空列表。
type Service struct {
	tracks   repository.TrackRepository
	fallback map[model.Source][]model.Track
}

// NewService repo 为 nil 时只提供内置曲目
func NewService(repo repository.TrackRepository) *Service {
	s := &Service{tracks: repo, fallback: map[model.Source][]model.Track{}}

	var raw map[model.Source][]model.Track
	if err := json.Unmarshal(fallbackJSON, &raw); err != nil {
		// 内置数据随二进制发布，解析失败属于构建错误
		panic("content: invalid fallback.json: " + err.Error())
	}
	for _, src := range []model.Source{model.SourceRadio, model.SourceLibrary} {
		s.fallback[src] = raw[src]
	}
	return s
}

// Playlist 按来源获取曲目列表
func (s *Service) Playlist(ctx context.Context, source model.Source) []model.Track {
	if s.tracks != nil {
		tracks, err := s.tracks.ListBySource(ctx, source)
		if err != nil {
			logger.Warn("获取歌单失败，使用回退列表",
				logger.String("source", string(source)),
				logger.ErrorField(err))
		} else if len(tracks) > 0 {
			return tracks
		}
	}
	return s.Fallback(source)
}

// Fallback 内置曲目的副本，没有内置曲目的来源返回空列表
func (s *Service) Fallback(source model.Source) []model.Track {
	return append([]model.Track{}, s.fallback[source]...)
}

// Track 按 id 查找曲目，先查内容库再查内置曲目
func (s *Service) Track(ctx context.Context, id string) (model.Track, bool) {
	if s.tracks != nil {
		t, err := s.tracks.GetByID(ctx, id)
		if err == nil {
			return *t, true
		}
		if !errors.Is(err, repository.ErrTrackNotFound) {
			logger.Warn("获取曲目失败", logger.String("id", id), logger.ErrorField(err))
		}
	}
	for _, list := range s.fallback {
		for _, t := range list {
			if t.ID == id {
				return t, true
			}
		}
	}
	return model.Track{}, false
}

// Known 音频地址是否属于内容库或内置曲目。内容库出错时只认内置曲目。
func (s *Service) Known(ctx context.Context, audioURL string) bool {
	for _, list := range s.fallback {
		for _, t := range list {
			if t.AudioURL == audioURL {
				return true
			}
		}
	}
	if s.tracks == nil {
		return false
	}
	ok, err := s.tracks.HasAudioURL(ctx, audioURL)
	if err != nil {
		logger.Warn("查询音频地址失败", logger.String("url", audioURL), logger.ErrorField(err))
		return false
	}
	return ok
}
