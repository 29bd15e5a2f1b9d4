package model

import "fmt"

// Source 播放队列的来源标签，决定持久化与重新加载行为
type Source string

const (
	SourceLibrary    Source = "library"
	SourceProduction Source = "production"
	SourceRadio      Source = "radio"
	SourceDynamic    Source = "dynamic" // 用户自建的会话歌单
)

// ParseSource 校验来源字符串
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceLibrary, SourceProduction, SourceRadio, SourceDynamic:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Track 可播放的最小单元。进入队列后不再修改，队列操作只复制值。
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	AudioURL  string `json:"audioUrl"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Library   string `json:"library,omitempty"`
}

// Playable 队列中的曲目必须有 id 和可播放地址
func (t Track) Playable() bool {
	return t.ID != "" && t.AudioURL != ""
}
