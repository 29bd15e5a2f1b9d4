package tab

import (
	"context"
	"sync"
	"time"

	"StudioFM/core/player"
	"StudioFM/core/session"
	"StudioFM/logger"
	"StudioFM/model"

	"golang.org/x/sync/singleflight"
)

// DefaultIdleTimeout 标签页无请求多久后回收内存中的播放状态
const DefaultIdleTimeout = 2 * time.Hour

// Tab 一个浏览器会话的全部播放状态。Do 串行化同一标签页的所有操作。
type Tab struct {
	ID       string
	Player   *player.Controller
	Registry *player.Registry
	Playlist *session.Playlist

	mu       sync.Mutex
	previews map[string]*player.Preview // 曲目 id -> 试听播放器
	lastSeen time.Time
}

// Do 在标签页锁内执行
func (t *Tab) Do(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn()
}

// Preview 获取或创建曲目的试听播放器，需在 Do 内调用
func (t *Tab) Preview(track model.Track) *player.Preview {
	if p, ok := t.previews[track.ID]; ok {
		return p
	}
	p := player.NewPreview(t.Registry, track)
	t.previews[track.ID] = p
	return p
}

// LookupPreview 需在 Do 内调用
func (t *Tab) LookupPreview(trackID string) (*player.Preview, bool) {
	p, ok := t.previews[trackID]
	return p, ok
}

// ClosePreview 销毁试听播放器并注销，需在 Do 内调用
func (t *Tab) ClosePreview(trackID string) bool {
	p, ok := t.previews[trackID]
	if !ok {
		return false
	}
	p.Close()
	delete(t.previews, trackID)
	return true
}

// Holds 音频地址是否出现在本标签页的队列、会话歌单或试听中，需在 Do 内调用
func (t *Tab) Holds(audioURL string) bool {
	if t.Player.Queued(audioURL) {
		return true
	}
	for _, tr := range t.Playlist.Tracks() {
		if tr.AudioURL == audioURL {
			return true
		}
	}
	for _, p := range t.previews {
		if p.Track().AudioURL == audioURL {
			return true
		}
	}
	return false
}

func (t *Tab) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.previews {
		p.Close()
		delete(t.previews, id)
	}
	t.Playlist.Bind(nil)
	t.Player.Release()
}

// Manager 按会话 id 懒创建标签页，并回收空闲的标签页
type Manager struct {
	store     session.Store
	extractor player.Extractor
	media     func(sessionID string) player.MediaSession
	idle      time.Duration
	now       func() time.Time
	opts      []player.Option

	mu       sync.Mutex
	tabs     map[string]*Tab
	creating singleflight.Group
}

type Option func(*Manager)

// WithMediaSession 为每个标签页提供媒体控制面
func WithMediaSession(f func(sessionID string) player.MediaSession) Option {
	return func(m *Manager) { m.media = f }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithClock 测试中替换时间源
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPlayerOptions 透传给每个播放器
func WithPlayerOptions(opts ...player.Option) Option {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

func NewManager(store session.Store, extractor player.Extractor, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		extractor: extractor,
		idle:      DefaultIdleTimeout,
		now:       time.Now,
		tabs:      make(map[string]*Tab),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get 返回会话的标签页，不存在时从会话存储恢复歌单并创建。
// 恢复在 m.mu 之外进行，同一会话的并发创建合并为一次。
func (m *Manager) Get(ctx context.Context, sessionID string) *Tab {
	if t, ok := m.touch(sessionID); ok {
		return t
	}

	v, _, _ := m.creating.Do(sessionID, func() (interface{}, error) {
		if t, ok := m.touch(sessionID); ok {
			return t, nil
		}
		t := m.newTab(ctx, sessionID)

		m.mu.Lock()
		m.tabs[sessionID] = t
		m.mu.Unlock()

		logger.Info("创建标签页状态",
			logger.String("session", sessionID),
			logger.Int("playlist", t.Playlist.Len()))
		return t, nil
	})
	return v.(*Tab)
}

func (m *Manager) touch(sessionID string) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[sessionID]
	if ok {
		t.lastSeen = m.now()
	}
	return t, ok
}

func (m *Manager) newTab(ctx context.Context, sessionID string) *Tab {
	registry := player.NewRegistry()
	opts := append([]player.Option(nil), m.opts...)
	if m.media != nil {
		opts = append(opts, player.WithMediaSession(m.media(sessionID)))
	}
	t := &Tab{
		ID:       sessionID,
		Registry: registry,
		Player:   player.NewController(registry, m.extractor, opts...),
		Playlist: session.Open(ctx, m.store, sessionID),
		previews: make(map[string]*player.Preview),
		lastSeen: m.now(),
	}
	t.Playlist.Bind(t.Player)
	return t
}

// Lookup 只查找，不创建
func (m *Manager) Lookup(sessionID string) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[sessionID]
	return t, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

// Sweep 回收超过空闲时间的标签页，会话歌单仍保留在存储中
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var expired []*Tab
	for id, t := range m.tabs {
		if t.lastSeen.Before(cutoff) {
			expired = append(expired, t)
			delete(m.tabs, id)
		}
	}
	m.mu.Unlock()

	for _, t := range expired {
		t.release()
	}
	if len(expired) > 0 {
		logger.Info("回收空闲标签页", logger.Int("count", len(expired)))
	}
	return len(expired)
}

// Run 定期回收，直到 ctx 结束
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(max(m.idle/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close 释放全部标签页
func (m *Manager) Close() {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[string]*Tab)
	m.mu.Unlock()
	for _, t := range tabs {
		t.release()
	}
}
