package player

import (
	"context"
	"errors"
	"sync"

	"StudioFM/core/artwork"
	"StudioFM/core/queue"
	"StudioFM/logger"
	"StudioFM/model"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("player is closed")

// Extractor 封面提取，*artwork.Extractor 满足该接口
type Extractor interface {
	Extract(ctx context.Context, audioURL string) (string, bool)
	Peek(audioURL string) (artwork.Entry, bool)
	Preload(ctx context.Context, tracks []model.Track) int
}

// MediaSession 系统级媒体控制面，只接收状态推送
type MediaSession interface {
	Publish(state model.PlayerState)
}

// Controller 单个标签页的常驻播放器：队列、可见性、电台模式与传输状态。
// 状态机 Closed -> Loaded -> {Playing <-> Paused} -> Closed，最小化是独立的维度。
type Controller struct {
	id         string
	registry   *Registry
	extractor  Extractor
	media      MediaSession
	run        func(func())
	unregister func()

	mu        sync.Mutex
	queue     *queue.Queue
	playing   bool
	visible   bool
	minimized bool
	radioMode bool
	artwork   string
	position  float64
	duration  float64
}

type Option func(*Controller)

// WithMediaSession 注入媒体控制面，未注入时状态推送为空操作
func WithMediaSession(m MediaSession) Option {
	return func(c *Controller) { c.media = m }
}

// WithRunner 替换后台任务的执行方式，测试中改为同步执行
func WithRunner(run func(func())) Option {
	return func(c *Controller) { c.run = run }
}

// WithQueue 使用预先构造的队列（例如固定随机种子）
func WithQueue(q *queue.Queue) Option {
	return func(c *Controller) { c.queue = q }
}

// NewController 创建播放器并注册到 registry
func NewController(registry *Registry, extractor Extractor, opts ...Option) *Controller {
	c := &Controller{
		id:        "player:" + uuid.NewString(),
		registry:  registry,
		extractor: extractor,
		run:       func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queue == nil {
		c.queue = queue.New()
	}
	c.unregister = registry.Register(c)
	return c
}

func (c *Controller) ID() string { return c.id }

// Release 从注册表注销，标签页销毁时调用
func (c *Controller) Release() {
	c.unregister()
}

// effects 状态变更后在锁外执行的副作用
type effects struct {
	artworkURL string
	preload    []model.Track
}

// State 当前状态快照
func (c *Controller) State() model.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.PlayerState {
	st := model.PlayerState{
		IsPlaying:    c.playing,
		Visible:      c.visible,
		Minimized:    c.minimized,
		RadioMode:    c.radioMode,
		Source:       c.queue.Source(),
		CurrentIndex: c.queue.CurrentIndex(),
		Artwork:      c.artwork,
		Position:     c.position,
		Duration:     c.duration,
		Shuffle:      c.queue.Shuffle(),
		QueueLength:  c.queue.Len(),
	}
	if cur, err := c.queue.Current(); err == nil {
		st.Current = &cur
	}
	return st
}

// commit 在释放锁之后调用：触发封面提取并推送状态
func (c *Controller) commit(fx effects) {
	if fx.artworkURL != "" {
		url := fx.artworkURL
		c.run(func() {
			dataURL, ok := c.extractor.Extract(context.Background(), url)
			if ok {
				c.applyArtwork(url, dataURL)
			}
		})
	}
	if len(fx.preload) > 0 {
		tracks := fx.preload
		c.run(func() {
			c.extractor.Preload(context.Background(), tracks)
		})
	}
	c.publish()
}

func (c *Controller) publish() {
	if c.media == nil {
		return
	}
	c.media.Publish(c.State())
}

// trackChangedLocked 当前曲目变化：重置进度，命中缓存时直接显示封面，否则安排提取
func (c *Controller) trackChangedLocked() effects {
	c.position = 0
	c.duration = 0
	c.artwork = ""

	cur, err := c.queue.Current()
	if err != nil {
		return effects{}
	}
	if entry, ok := c.extractor.Peek(cur.AudioURL); ok {
		c.artwork = entry.DataURL
		return effects{}
	}
	return effects{artworkURL: cur.AudioURL}
}

// applyArtwork 只有提取目标仍是当前曲目时才更新显示
func (c *Controller) applyArtwork(audioURL, dataURL string) {
	c.mu.Lock()
	cur, err := c.queue.Current()
	if err != nil || cur.AudioURL != audioURL {
		c.mu.Unlock()
		logger.Debug("丢弃过期的封面结果", logger.String("url", audioURL))
		return
	}
	c.artwork = dataURL
	c.mu.Unlock()
	c.publish()
}

// Load 载入队列并开始播放；当前曲目立即提取封面，其余曲目后台预加载。
// 载入被拒绝时其他播放端保持原状。
func (c *Controller) Load(tracks []model.Track, index int, source model.Source) error {
	c.mu.Lock()
	if err := c.queue.Load(tracks, index, source); err != nil {
		c.mu.Unlock()
		return err
	}
	c.radioMode = source == model.SourceRadio
	c.playing = true
	fx := c.trackChangedLocked()
	fx.preload = c.othersLocked()
	c.mu.Unlock()

	c.registry.PauseOthers(c.id)
	logger.Info("播放队列已载入",
		logger.String("player", c.id),
		logger.String("source", string(source)),
		logger.Int("tracks", len(tracks)),
		logger.Int("index", index))
	c.commit(fx)
	return nil
}

// Queued 队列中是否有使用该音频地址的曲目
func (c *Controller) Queued(audioURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.queue.Tracks() {
		if t.AudioURL == audioURL {
			return true
		}
	}
	return false
}

// othersLocked 除当前曲目以外的队列曲目
func (c *Controller) othersLocked() []model.Track {
	all := c.queue.Tracks()
	cur := c.queue.CurrentIndex()
	out := make([]model.Track, 0, len(all))
	for i, t := range all {
		if i != cur {
			out = append(out, t)
		}
	}
	return out
}

// PlayAt 跳转到指定位置
func (c *Controller) PlayAt(index int) (model.Track, error) {
	return c.transport(func() (model.Track, error) { return c.queue.PlayAt(index) })
}

func (c *Controller) Next() (model.Track, error) {
	return c.transport(c.queue.Next)
}

func (c *Controller) Previous() (model.Track, error) {
	return c.transport(c.queue.Previous)
}

// TrackEnded 当前曲目播放完毕，自动前进并保持播放
func (c *Controller) TrackEnded() (model.Track, error) {
	return c.transport(func() (model.Track, error) {
		t, err := c.queue.Next()
		if err == nil {
			c.playing = true
		}
		return t, err
	})
}

func (c *Controller) transport(step func() (model.Track, error)) (model.Track, error) {
	c.mu.Lock()
	t, err := step()
	if err != nil {
		c.mu.Unlock()
		return model.Track{}, err
	}
	fx := c.trackChangedLocked()
	c.mu.Unlock()

	c.commit(fx)
	return t, nil
}

// Play 开始播放，先暂停其他播放端
func (c *Controller) Play() error {
	c.mu.Lock()
	empty := c.queue.Len() == 0
	c.mu.Unlock()
	if empty {
		return ErrClosed
	}

	c.registry.PauseOthers(c.id)
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	c.publish()
	return nil
}

// Pause 由用户或注册表调用
func (c *Controller) Pause() {
	c.mu.Lock()
	changed := c.playing
	c.playing = false
	c.mu.Unlock()
	if changed {
		c.publish()
	}
}

// Seek 把位置限制在 [0, duration]
func (c *Controller) Seek(position float64) error {
	c.mu.Lock()
	if c.queue.Len() == 0 {
		c.mu.Unlock()
		return ErrClosed
	}
	c.position = clamp(position, 0, c.duration)
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetDuration 音频端上报时长，位置随之收紧
func (c *Controller) SetDuration(duration float64) {
	c.mu.Lock()
	c.duration = max(duration, 0)
	c.position = clamp(c.position, 0, c.duration)
	c.mu.Unlock()
	c.publish()
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

func (c *Controller) Show() { c.setFlags(func() { c.visible = true }) }

func (c *Controller) Hide() { c.setFlags(func() { c.visible = false }) }

func (c *Controller) Minimize() { c.setFlags(func() { c.minimized = true }) }

func (c *Controller) Expand() { c.setFlags(func() { c.minimized = false }) }

func (c *Controller) setFlags(f func()) {
	c.mu.Lock()
	f()
	c.mu.Unlock()
	c.publish()
}

// CloseCompletely 清空队列并重置全部播放状态
func (c *Controller) CloseCompletely() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
	logger.Info("播放器已关闭", logger.String("player", c.id))
	c.publish()
}

func (c *Controller) closeLocked() {
	c.queue.Clear()
	c.playing = false
	c.visible = false
	c.minimized = false
	c.radioMode = false
	c.artwork = ""
	c.position = 0
	c.duration = 0
}

// EnterRadioMode 用电台曲目替换队列，来源固定为 radio
func (c *Controller) EnterRadioMode(tracks []model.Track) error {
	if err := c.Load(tracks, 0, model.SourceRadio); err != nil {
		return err
	}
	c.Show()
	return nil
}

// ExitRadioMode 清除随机播放状态并完全关闭，电台不会作为后台队列继续
func (c *Controller) ExitRadioMode() {
	c.mu.Lock()
	if !c.radioMode {
		c.mu.Unlock()
		return
	}
	c.queue.SetShuffle(false)
	c.closeLocked()
	c.mu.Unlock()
	logger.Info("已退出电台模式", logger.String("player", c.id))
	c.publish()
}

// SetShuffle 开关随机播放
func (c *Controller) SetShuffle(enabled bool) {
	c.setFlags(func() { c.queue.SetShuffle(enabled) })
}

// Upcoming 当前曲目之后的最多 count 首
func (c *Controller) Upcoming(count int) []model.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Track
	for t := range c.queue.Upcoming(count) {
		out = append(out, t)
	}
	return out
}

// ActiveSource 当前队列来源，关闭时为空
func (c *Controller) ActiveSource() model.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Source()
}

// AppendTrack 会话歌单新增曲目时同步到队列
func (c *Controller) AppendTrack(track model.Track) error {
	c.mu.Lock()
	wasEmpty := c.queue.Len() == 0
	if err := c.queue.Append(track); err != nil {
		c.mu.Unlock()
		return err
	}
	var fx effects
	if wasEmpty {
		fx = c.trackChangedLocked()
	}
	c.mu.Unlock()
	c.commit(fx)
	return nil
}

// RemoveTrack 会话歌单移除曲目时同步到队列，当前曲目被移除时切换封面
func (c *Controller) RemoveTrack(id string) (int, error) {
	c.mu.Lock()
	before, _ := c.queue.Current()
	remaining, err := c.queue.Remove(id)
	if err != nil {
		c.mu.Unlock()
		return remaining, err
	}
	var fx effects
	if after, err := c.queue.Current(); err == nil && after.ID != before.ID {
		fx = c.trackChangedLocked()
	}
	c.mu.Unlock()
	c.commit(fx)
	return remaining, nil
}
