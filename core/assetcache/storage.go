package assetcache

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
)

// ErrNotCached 缓存中没有对应请求
var ErrNotCached = errors.New("no cached response")

// Response 缓存中保存的完整响应
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Cache 一个命名缓存，键为请求的 path+query
type Cache interface {
	Match(ctx context.Context, key string) (*Response, error)
	Put(ctx context.Context, key string, resp *Response) error
}

// Storage 命名缓存的集合。Open 在缓存不存在时创建。
type Storage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// MemoryStorage 进程内实现
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*Response)}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.caches, name)
	s.mu.Unlock()
	return nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Response
}

func (c *memoryCache) Match(_ context.Context, key string) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, ErrNotCached
	}
	return resp.clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key string, resp *Response) error {
	c.mu.Lock()
	c.entries[key] = resp.clone()
	c.mu.Unlock()
	return nil
}

func (r *Response) clone() *Response {
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}
