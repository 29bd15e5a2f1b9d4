package assetcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"StudioFM/logger"

	"golang.org/x/sync/errgroup"
)

const defaultInstallConcurrency = 8

// Worker 某一版本的资源缓存层，拦截所有非服务接口的请求
type Worker struct {
	name        string
	manifest    *Manifest
	assets      map[string]struct{}
	storage     Storage
	net         *network
	concurrency int
}

// WorkerOption 工作者选项
type WorkerOption func(*Worker)

func WithClient(c HTTPDoer) WorkerOption {
	return func(w *Worker) { w.net.client = c }
}

// WithInstallConcurrency 安装阶段并发下载数
func WithInstallConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWorker 创建某一版本的工作者，缓存名由 prefix 与清单版本组成
func NewWorker(storage Storage, m *Manifest, origin *url.URL, prefix string, opts ...WorkerOption) *Worker {
	w := &Worker{
		name:        m.CacheName(prefix),
		manifest:    m,
		assets:      make(map[string]struct{}, len(m.Assets)),
		storage:     storage,
		net:         &network{origin: origin, client: http.DefaultClient},
		concurrency: defaultInstallConcurrency,
	}
	for _, a := range m.Assets {
		w.assets[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Name() string { return w.name }

func (w *Worker) Manifest() *Manifest { return w.manifest }

// Install 预缓存清单中的全部资源。任一失败即删除整个缓存并返回错误，
// 不会留下部分填充的缓存。
func (w *Worker) Install(ctx context.Context) error {
	cache, err := w.storage.Open(ctx, w.name)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", w.name, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, asset := range w.manifest.Assets {
		g.Go(func() error {
			resp, err := w.net.get(gctx, asset)
			if err != nil {
				return err
			}
			if resp.Status != http.StatusOK {
				return fmt.Errorf("precache %s: status %d", asset, resp.Status)
			}
			return cache.Put(gctx, asset, shareable(resp))
		})
	}

	if err := g.Wait(); err != nil {
		if delErr := w.storage.Delete(context.WithoutCancel(ctx), w.name); delErr != nil {
			logger.Error("清理未完成的缓存失败",
				logger.String("cache", w.name),
				logger.ErrorField(delErr))
		}
		return fmt.Errorf("install %s: %w", w.name, err)
	}

	logger.Info("资源缓存安装完成",
		logger.String("cache", w.name),
		logger.Int("assets", len(w.manifest.Assets)))
	return nil
}

// Activate 删除所有名字不同的缓存，这是唯一的淘汰方式
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == w.name {
			continue
		}
		if err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		logger.Info("已删除旧版本缓存", logger.String("cache", name))
	}
	return nil
}

// ServeHTTP 按请求类型选择缓存策略
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.passthrough(rw, r)
		return
	}

	key := r.URL.RequestURI()
	switch {
	case w.isAsset(r.URL.Path):
		// 构建产物按 path 预缓存，查询串只用于破坏浏览器缓存
		w.cacheFirst(rw, r, r.URL.Path)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		w.networkFirst(rw, r, key, key)
	case isNavigation(r):
		w.networkFirst(rw, r, key, w.manifest.Shell)
	default:
		w.networkFirst(rw, r, key, key)
	}
}

func (w *Worker) isAsset(path string) bool {
	_, ok := w.assets[path]
	return ok
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (w *Worker) passthrough(rw http.ResponseWriter, r *http.Request) {
	resp, err := w.net.forward(r)
	if err != nil {
		logger.Warn("转发请求失败", logger.String("path", r.URL.Path), logger.ErrorField(err))
		http.Error(rw, "origin unavailable", http.StatusBadGateway)
		return
	}
	write(rw, resp, "BYPASS")
}

// cacheFirst 构建产物：命中直接返回，未命中走网络但不写缓存
func (w *Worker) cacheFirst(rw http.ResponseWriter, r *http.Request, key string) {
	if resp, err := w.match(r.Context(), key); err == nil {
		write(rw, resp, "HIT")
		return
	}
	w.passthrough(rw, r)
}

// networkFirst 先走网络，成功的 200 响应写入缓存；网络失败时回退到 fallbackKey
func (w *Worker) networkFirst(rw http.ResponseWriter, r *http.Request, key, fallbackKey string) {
	resp, err := w.net.forward(r)
	if err == nil {
		if cacheable(r, resp) {
			w.put(r.Context(), key, shareable(resp))
		}
		write(rw, resp, "MISS")
		return
	}

	cached, cerr := w.match(r.Context(), fallbackKey)
	if cerr != nil {
		logger.Warn("网络失败且无缓存可用",
			logger.String("path", r.URL.Path),
			logger.String("fallback", fallbackKey),
			logger.ErrorField(err))
		http.Error(rw, "origin unavailable", http.StatusBadGateway)
		return
	}
	logger.Debug("网络失败，使用缓存响应",
		logger.String("path", r.URL.Path),
		logger.String("fallback", fallbackKey))
	write(rw, cached, "FALLBACK")
}

// cacheable 缓存为所有会话共享，带凭据的请求与私有响应不写入
func cacheable(r *http.Request, resp *Response) bool {
	if resp.Status != http.StatusOK {
		return false
	}
	if r.Header.Get("Cookie") != "" || r.Header.Get("Authorization") != "" {
		return false
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	return !strings.Contains(cc, "private") && !strings.Contains(cc, "no-store")
}

// shareable 去掉 Set-Cookie 后的副本
func shareable(resp *Response) *Response {
	if len(resp.Header.Values("Set-Cookie")) == 0 {
		return resp
	}
	header := resp.Header.Clone()
	header.Del("Set-Cookie")
	return &Response{Status: resp.Status, Header: header, Body: resp.Body}
}

func (w *Worker) match(ctx context.Context, key string) (*Response, error) {
	cache, err := w.storage.Open(ctx, w.name)
	if err != nil {
		return nil, err
	}
	return cache.Match(ctx, key)
}

func (w *Worker) put(ctx context.Context, key string, resp *Response) {
	cache, err := w.storage.Open(ctx, w.name)
	if err == nil {
		err = cache.Put(ctx, key, resp)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("写入缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
}
