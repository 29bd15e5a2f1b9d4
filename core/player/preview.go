package player

import (
	"sync"

	"StudioFM/model"

	"github.com/google/uuid"
)

// Preview 曲目详情里的试听播放器，与常驻播放器互斥
type Preview struct {
	id         string
	track      model.Track
	registry   *Registry
	unregister func()

	mu      sync.Mutex
	playing bool
}

// NewPreview 创建并注册试听播放器
func NewPreview(registry *Registry, track model.Track) *Preview {
	p := &Preview{
		id:       "preview:" + uuid.NewString(),
		track:    track,
		registry: registry,
	}
	p.unregister = registry.Register(p)
	return p
}

func (p *Preview) ID() string { return p.id }

func (p *Preview) Track() model.Track { return p.track }

// Play 先暂停其他播放端再开始
func (p *Preview) Play() {
	p.registry.PauseOthers(p.id)
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
}

func (p *Preview) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *Preview) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close 停止并注销
func (p *Preview) Close() {
	p.Pause()
	p.unregister()
}
