package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"StudioFM/logger"
	"StudioFM/model"
)

var ErrInvalidTrack = errors.New("track has no id or audio url")

// QueueBinding 歌单与播放队列之间的同步接口，由播放器控制器实现
type QueueBinding interface {
	ActiveSource() model.Source
	AppendTrack(track model.Track) error
	RemoveTrack(id string) (int, error)
	Load(tracks []model.Track, index int, source model.Source) error
	Show()
	CloseCompletely()
}

// Playlist 用户自建的会话歌单，在同一会话内跨刷新保留。
// 每次修改都把完整列表写回存储；当它是播放器的当前来源时同步到队列。
type Playlist struct {
	mu        sync.Mutex
	store     Store
	sessionID string
	tracks    []model.Track
	binding   QueueBinding
}

// Open 从存储恢复歌单，数据损坏或读取失败时视为空歌单
func Open(ctx context.Context, store Store, sessionID string) *Playlist {
	p := &Playlist{store: store, sessionID: sessionID}

	raw, err := store.Load(ctx, sessionID)
	if err != nil {
		logger.Warn("读取会话歌单失败，使用空歌单",
			logger.String("session", sessionID),
			logger.ErrorField(err))
		return p
	}
	if len(raw) == 0 {
		return p
	}

	var stored []model.Track
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Warn("会话歌单数据损坏，已丢弃",
			logger.String("session", sessionID),
			logger.ErrorField(err))
		return p
	}

	seen := make(map[string]struct{}, len(stored))
	for _, t := range stored {
		if !t.Playable() {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		p.tracks = append(p.tracks, t)
	}
	return p
}

// Bind 关联播放器队列，nil 表示解除
func (p *Playlist) Bind(b QueueBinding) {
	p.mu.Lock()
	p.binding = b
	p.mu.Unlock()
}

func (p *Playlist) SessionID() string { return p.sessionID }

// Add 追加曲目，已存在相同 id 时不做任何事并返回 false。
// 先写存储，写入失败时内存与队列都不变。
func (p *Playlist) Add(ctx context.Context, track model.Track) (bool, error) {
	if !track.Playable() {
		return false, ErrInvalidTrack
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexOf(track.ID) >= 0 {
		return false, nil
	}
	next := append(slices.Clip(p.tracks), track)
	if err := p.save(ctx, next); err != nil {
		return false, err
	}
	p.tracks = next

	if p.activeLocked() {
		if err := p.binding.AppendTrack(track); err != nil {
			logger.Warn("同步新增曲目到播放队列失败",
				logger.String("session", p.sessionID),
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
		}
	}
	return true, nil
}

// Remove 按 id 移除。当前来源是本歌单时，队列同步移除；移空后播放器完全关闭。
func (p *Playlist) Remove(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexOf(id)
	if idx < 0 {
		return false, nil
	}
	next := slices.Delete(slices.Clone(p.tracks), idx, idx+1)
	if err := p.save(ctx, next); err != nil {
		return false, err
	}
	p.tracks = next

	if p.activeLocked() {
		remaining, err := p.binding.RemoveTrack(id)
		if err != nil {
			logger.Warn("同步移除曲目到播放队列失败",
				logger.String("session", p.sessionID),
				logger.String("trackId", id),
				logger.ErrorField(err))
		}
		if len(p.tracks) == 0 || remaining == 0 {
			p.binding.CloseCompletely()
		}
	}
	return true, nil
}

// Clear 清空歌单，当前来源是本歌单时关闭播放器
func (p *Playlist) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tracks = nil
	if p.activeLocked() {
		p.binding.CloseCompletely()
	}
	if err := p.store.Delete(ctx, p.sessionID); err != nil {
		return fmt.Errorf("delete session playlist: %w", err)
	}
	return nil
}

// PlayFrom 把歌单作为当前来源载入队列，从 index 开始播放并显示播放器
func (p *Playlist) PlayFrom(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.binding == nil {
		return errors.New("playlist is not bound to a player")
	}
	if err := p.binding.Load(p.tracks, index, model.SourceDynamic); err != nil {
		return err
	}
	p.binding.Show()
	return nil
}

func (p *Playlist) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexOf(id) >= 0
}

// Tracks 返回副本
func (p *Playlist) Tracks() []model.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

func (p *Playlist) indexOf(id string) int {
	for i, t := range p.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (p *Playlist) activeLocked() bool {
	return p.binding != nil && p.binding.ActiveSource() == model.SourceDynamic
}

// save 整体序列化写回，空列表同样写入 "[]"
func (p *Playlist) save(ctx context.Context, tracks []model.Track) error {
	if tracks == nil {
		tracks = []model.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("marshal session playlist: %w", err)
	}
	if err := p.store.Save(ctx, p.sessionID, data); err != nil {
		return fmt.Errorf("save session playlist: %w", err)
	}
	return nil
}
