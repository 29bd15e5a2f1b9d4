package artwork

import "sync"

// Entry 封面缓存项。Found 为 false 表示已确认没有封面，避免对同一地址反复提取。
type Entry struct {
	DataURL string `json:"dataUrl,omitempty"`
	Found   bool   `json:"found"`
}

// Cache 以音频地址为键的进程内封面缓存，只增不减，直到显式 Clear。
// 由创建者持有并按引用传给协作者。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache 创建空缓存
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get 精确匹配地址
func (c *Cache) Get(audioURL string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[audioURL]
	return e, ok
}

// Set 写入结果（成功或否定）
func (c *Cache) Set(audioURL string, e Entry) {
	c.mu.Lock()
	c.entries[audioURL] = e
	c.mu.Unlock()
}

// Clear 清空全部缓存
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len 缓存条目数
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
