package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"StudioFM/core/assetcache"
	"StudioFM/logger"

	"github.com/minio/minio-go/v7"
)

// cachesRoot 所有资源缓存都放在这个前缀下，一个缓存一个目录
const cachesRoot = "caches/"

// MinioCacheStorage 把资源缓存放在 MinIO 中，多个实例可共享同一代缓存
type MinioCacheStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioCacheStorage(client *minio.Client, bucket string) *MinioCacheStorage {
	return &MinioCacheStorage{client: client, bucket: bucket}
}

// Open MinIO 中目录不需要预先创建
func (s *MinioCacheStorage) Open(_ context.Context, name string) (assetcache.Cache, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid cache name %q", name)
	}
	return &minioCache{client: s.client, bucket: s.bucket, dir: cachesRoot + name + "/"}, nil
}

// Keys 列出 caches/ 下的一级目录
func (s *MinioCacheStorage) Keys(ctx context.Context) ([]string, error) {
	var names []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    cachesRoot,
		Recursive: false,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出缓存失败: %w", object.Err)
		}
		if !strings.HasSuffix(object.Key, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(object.Key, cachesRoot), "/"))
	}
	return names, nil
}

// Delete 递归删除整个缓存目录，目录不存在时不报错
func (s *MinioCacheStorage) Delete(ctx context.Context, name string) error {
	prefix := cachesRoot + name + "/"

	var toDelete []minio.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		toDelete = append(toDelete, object)
	}
	if len(toDelete) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(toDelete))
	for _, obj := range toDelete {
		objectsCh <- obj
	}
	close(objectsCh)

	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("删除对象 %s 失败: %w", rerr.ObjectName, rerr.Err)
		}
	}
	logger.Info("已删除缓存目录",
		logger.String("prefix", prefix),
		logger.Int("objects", len(toDelete)))
	return nil
}

type minioCache struct {
	client *minio.Client
	bucket string
	dir    string
}

// objectKey 请求键可能包含 ? 和 /，编码为单层对象名
func objectKey(dir, key string) string {
	return dir + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (c *minioCache) Match(ctx context.Context, key string) (*assetcache.Response, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectKey(c.dir, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取缓存对象失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, assetcache.ErrNotCached
		}
		return nil, fmt.Errorf("读取缓存对象失败: %w", err)
	}

	var resp assetcache.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("解析缓存对象失败: %w", err)
	}
	return &resp, nil
}

func (c *minioCache) Put(ctx context.Context, key string, resp *assetcache.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("序列化缓存对象失败: %w", err)
	}
	_, err = c.client.PutObject(ctx, c.bucket, objectKey(c.dir, key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "application/json",
			UserMetadata: map[string]string{"request-key": key},
		})
	if err != nil {
		return fmt.Errorf("写入缓存对象失败: %w", err)
	}
	return nil
}

// Generation 一代缓存的统计信息
type Generation struct {
	Name         string
	Objects      int64
	Size         int64
	LastModified time.Time
}

// Generations 按缓存名汇总对象数与大小
func (s *MinioCacheStorage) Generations(ctx context.Context) ([]Generation, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Generation, 0, len(names))
	for _, name := range names {
		g := Generation{Name: name}
		for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    cachesRoot + name + "/",
			Recursive: true,
		}) {
			if object.Err != nil {
				return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
			}
			g.Objects++
			g.Size += object.Size
			if object.LastModified.After(g.LastModified) {
				g.LastModified = object.LastModified
			}
		}
		out = append(out, g)
	}
	return out, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
