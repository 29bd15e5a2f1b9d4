package player

import (
	"sync"

	"StudioFM/logger"
)

// Backend 能够发出声音的播放端：常驻播放器或详情页里的试听播放器
type Backend interface {
	ID() string
	Pause()
}

// Registry 记录当前存活的播放端，用于"开始播放前暂停其他所有播放端"。
// 播放端创建时注册，销毁时调用 Register 返回的函数注销。
type Registry struct {
	mu       sync.Mutex
	backends map[string]Backend
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register 注册播放端，返回幂等的注销函数
func (r *Registry) Register(b Backend) func() {
	id := b.ID()

	r.mu.Lock()
	if _, exists := r.backends[id]; !exists {
		r.order = append(r.order, id)
	}
	r.backends[id] = b
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.unregister(id) })
	}
}

func (r *Registry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[id]; !ok {
		return
	}
	delete(r.backends, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// PauseOthers 暂停除 exceptID 以外的所有播放端，返回被通知的数量。
// 回调在锁外执行，播放端可以在 Pause 中再访问注册表。
func (r *Registry) PauseOthers(exceptID string) int {
	r.mu.Lock()
	others := make([]Backend, 0, len(r.order))
	for _, id := range r.order {
		if id != exceptID {
			others = append(others, r.backends[id])
		}
	}
	r.mu.Unlock()

	for _, b := range others {
		b.Pause()
	}
	if len(others) > 0 {
		logger.Debug("已暂停其他播放端",
			logger.String("starting", exceptID),
			logger.Int("paused", len(others)))
	}
	return len(others)
}

// Len 已注册的播放端数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backends)
}

// IDs 按注册顺序返回
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
