package assetcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultShell = "/index.html"

// Manifest 构建产物清单，部署时生成，版本号决定缓存名
type Manifest struct {
	Version string   `json:"version"`
	Shell   string   `json:"shell"`
	Assets  []string `json:"assets"`
}

// LoadManifest 读取清单文件
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest 解析并校验清单，shell 缺省为 /index.html 且总会被预缓存
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if strings.TrimSpace(m.Version) == "" {
		return nil, errors.New("manifest has no version")
	}
	if m.Shell == "" {
		m.Shell = defaultShell
	}

	seen := make(map[string]struct{}, len(m.Assets)+1)
	assets := make([]string, 0, len(m.Assets)+1)
	for _, a := range append([]string{m.Shell}, m.Assets...) {
		if !strings.HasPrefix(a, "/") {
			return nil, fmt.Errorf("asset path %q must start with /", a)
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		assets = append(assets, a)
	}
	m.Assets = assets
	return &m, nil
}

// CacheName 缓存名 = 前缀-版本
func (m *Manifest) CacheName(prefix string) string {
	return prefix + "-" + m.Version
}
