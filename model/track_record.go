package model

import (
	"strconv"
	"time"
)

// TrackRecord 内容库中的曲目记录（CMS 同步到 MySQL 的只读副本）
type TrackRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Source    string    `gorm:"type:varchar(20);index:idx_source_position,priority:1;not null" json:"source"`
	Position  int       `gorm:"index:idx_source_position,priority:2;default:0" json:"position"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Artist    string    `gorm:"type:varchar(255)" json:"artist"`
	AudioURL  string    `gorm:"column:audio_url;type:varchar(767);not null" json:"audioUrl"`
	Thumbnail string    `gorm:"type:varchar(767)" json:"thumbnail"`
	Genre     string    `gorm:"type:varchar(100)" json:"genre"`
	Library   string    `gorm:"type:varchar(100)" json:"library"`
	Published bool      `gorm:"default:true;index" json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (TrackRecord) TableName() string {
	return "tracks"
}

// ToTrack 转换为可入队的曲目
func (r TrackRecord) ToTrack() Track {
	return Track{
		ID:        strconv.FormatInt(r.ID, 10),
		Title:     r.Title,
		Artist:    r.Artist,
		AudioURL:  r.AudioURL,
		Thumbnail: r.Thumbnail,
		Genre:     r.Genre,
		Library:   r.Library,
	}
}
