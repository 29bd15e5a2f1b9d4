package assetcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"StudioFM/logger"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Runtime 持有当前生效的工作者。新版本只有安装成功才会替换旧版本。
type Runtime struct {
	storage Storage
	origin  *url.URL
	prefix  string
	opts    []WorkerOption

	deployMu sync.Mutex
	active   atomic.Pointer[Worker]
	net      *network
}

// NewRuntime 创建运行时，部署前所有请求直接转发到源站
func NewRuntime(storage Storage, origin *url.URL, prefix string, opts ...WorkerOption) *Runtime {
	rt := &Runtime{
		storage: storage,
		origin:  origin,
		prefix:  prefix,
		opts:    opts,
	}
	// 直连转发与工作者使用同一个 HTTP 客户端
	direct := &Worker{net: &network{origin: origin, client: http.DefaultClient}}
	for _, opt := range opts {
		opt(direct)
	}
	rt.net = direct.net
	return rt
}

// Active 当前生效的工作者，未部署时为 nil
func (rt *Runtime) Active() *Worker {
	return rt.active.Load()
}

// Deploy 安装并激活清单对应的版本；安装失败时旧版本继续生效
func (rt *Runtime) Deploy(ctx context.Context, m *Manifest) error {
	rt.deployMu.Lock()
	defer rt.deployMu.Unlock()

	name := m.CacheName(rt.prefix)
	if cur := rt.active.Load(); cur != nil && cur.Name() == name {
		logger.Debug("资源缓存版本未变化", logger.String("cache", name))
		return nil
	}

	w := NewWorker(rt.storage, m, rt.origin, rt.prefix, rt.opts...)
	if err := w.Install(ctx); err != nil {
		logger.Error("资源缓存安装失败，保留当前版本",
			logger.String("cache", name),
			logger.ErrorField(err))
		return err
	}

	prev := rt.active.Swap(w)
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}

	fields := []logger.Field{logger.String("cache", name)}
	if prev != nil {
		fields = append(fields, logger.String("previous", prev.Name()))
	}
	logger.Info("资源缓存版本已激活", fields...)
	return nil
}

// DeployFile 从清单文件部署
func (rt *Runtime) DeployFile(ctx context.Context, path string) error {
	m, err := LoadManifest(path)
	if err != nil {
		return err
	}
	return rt.Deploy(ctx, m)
}

// Watch 监听清单文件，变化后重新部署，直到 ctx 结束。
// 监听所在目录，兼容构建工具用重命名替换文件的写法。
func (rt *Runtime) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve manifest path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("开始监听资源清单", logger.String("path", abs))

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			if err := rt.DeployFile(ctx, abs); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("清单变化后重新部署失败", logger.ErrorField(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("清单监听出错", logger.ErrorField(err))
		}
	}
}

// ServeHTTP 交给当前工作者；尚未部署时直接转发
func (rt *Runtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if active := rt.active.Load(); active != nil {
		active.ServeHTTP(w, r)
		return
	}
	resp, err := rt.net.forward(r)
	if err != nil {
		logger.Warn("转发请求失败", logger.String("path", r.URL.Path), logger.ErrorField(err))
		http.Error(w, "origin unavailable", http.StatusBadGateway)
		return
	}
	write(w, resp, "BYPASS")
}
