package model

// PlayerState 单个标签页的播放器状态，不持久化
type PlayerState struct {
	IsPlaying    bool    `json:"isPlaying"`
	Visible      bool    `json:"visible"`
	Minimized    bool    `json:"minimized"`
	RadioMode    bool    `json:"radioMode"`
	Source       Source  `json:"source,omitempty"`
	CurrentIndex int     `json:"currentIndex"`
	Current      *Track  `json:"current,omitempty"`
	Artwork      string  `json:"artwork,omitempty"` // data URL，为空时前端使用 Thumbnail
	Position     float64 `json:"position"`          // 秒
	Duration     float64 `json:"duration"`          // 秒
	Shuffle      bool    `json:"shuffle"`
	QueueLength  int     `json:"queueLength"`
}
