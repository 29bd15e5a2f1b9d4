package artwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"StudioFM/logger"
	"StudioFM/model"

	"github.com/dhowden/tag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxBytes    int64 = 512 * 1024
	DefaultTimeout           = 5 * time.Second
	DefaultConcurrency       = 4
)

var errNoPicture = errors.New("no embedded picture")

// HTTPDoer *http.Client 满足该接口
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Extractor 从音频文件头部的标签中提取内嵌封面。
// 任何失败都降级为"无封面"并写入否定缓存，调用方不需要重试。
type Extractor struct {
	client      HTTPDoer
	cache       *Cache
	maxBytes    int64
	timeout     time.Duration
	concurrency int
	group       singleflight.Group
}

// Option 提取器选项
type Option func(*Extractor)

func WithHTTPClient(c HTTPDoer) Option {
	return func(e *Extractor) { e.client = c }
}

// WithMaxBytes 单次 Range 请求读取的最大字节数
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency 批量预加载的并发上限
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExtractor 创建提取器，cache 为 nil 时自建
func NewExtractor(cache *Cache, opts ...Option) *Extractor {
	if cache == nil {
		cache = NewCache()
	}
	e := &Extractor{
		client:      http.DefaultClient,
		cache:       cache,
		maxBytes:    DefaultMaxBytes,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache 返回底层缓存，便于与其他组件共享
func (e *Extractor) Cache() *Cache {
	return e.cache
}

// Peek 只读缓存，不发起请求
func (e *Extractor) Peek(audioURL string) (Entry, bool) {
	return e.cache.Get(audioURL)
}

// ClearCache 清空封面缓存
func (e *Extractor) ClearCache() {
	e.cache.Clear()
	logger.Info("封面缓存已清空")
}

// Extract 返回音频内嵌封面的 data URL；ok 为 false 时调用方使用静态缩略图。
// 已缓存的地址直接返回，同一地址的并发请求合并为一次下载。
func (e *Extractor) Extract(ctx context.Context, audioURL string) (string, bool) {
	if audioURL == "" {
		return "", false
	}
	if entry, ok := e.cache.Get(audioURL); ok {
		return entry.DataURL, entry.Found
	}

	v, _, _ := e.group.Do(audioURL, func() (interface{}, error) {
		if entry, ok := e.cache.Get(audioURL); ok {
			return entry, nil
		}

		start := time.Now()
		entry, err := e.fetch(ctx, audioURL)
		if err != nil {
			logger.Debug("封面提取失败，记录为无封面",
				logger.String("url", audioURL),
				logger.Duration("elapsed", time.Since(start)),
				logger.ErrorField(err))
		} else {
			logger.Debug("封面提取成功",
				logger.String("url", audioURL),
				logger.Int("dataUrlLength", len(entry.DataURL)),
				logger.Duration("elapsed", time.Since(start)))
		}
		e.cache.Set(audioURL, entry)
		return entry, nil
	})

	entry := v.(Entry)
	return entry.DataURL, entry.Found
}

// fetch 下载音频头部并解析内嵌图片
func (e *Extractor) fetch(ctx context.Context, audioURL string) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", e.maxBytes-1))

	resp, err := e.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("fetch audio head: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return Entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// 服务器忽略 Range 时也只读取前 maxBytes 字节
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return Entry{}, fmt.Errorf("read audio head: %w", err)
	}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return Entry{}, fmt.Errorf("parse tags: %w", err)
	}

	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return Entry{}, errNoPicture
	}

	return Entry{DataURL: dataURL(pic), Found: true}, nil
}

// dataURL 编码为自包含的图片地址
func dataURL(pic *tag.Picture) string {
	mimeType := pic.MIMEType
	if !strings.Contains(mimeType, "/") {
		// ID3v2.2 只给出 "JPG"/"PNG" 这样的格式名
		mimeType = ""
		if pic.Ext != "" {
			mimeType = mime.TypeByExtension("." + strings.ToLower(pic.Ext))
		}
		if mimeType == "" {
			mimeType = http.DetectContentType(pic.Data)
		}
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(pic.Data)
}

// Preload 为尚未缓存的曲目并发提取封面，等待全部完成。
// 单个曲目失败不影响其他曲目，返回实际发起的提取数。
func (e *Extractor) Preload(ctx context.Context, tracks []model.Track) int {
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	seen := make(map[string]struct{}, len(tracks))
	started := 0
	for _, t := range tracks {
		url := t.AudioURL
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		if _, cached := e.cache.Get(url); cached {
			continue
		}

		started++
		g.Go(func() error {
			e.Extract(ctx, url)
			return nil
		})
	}

	_ = g.Wait()
	logger.Debug("封面预加载完成",
		logger.Int("tracks", len(tracks)),
		logger.Int("fetched", started))
	return started
}
