package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"StudioFM/model"

	"gorm.io/gorm"
)

var ErrTrackNotFound = errors.New("track not found")

// TrackRepository 内容库中的曲目查询
type TrackRepository interface {
	// ListBySource 按来源列出已发布曲目，按位置排序
	ListBySource(ctx context.Context, source model.Source) ([]model.Track, error)

	// GetByID 按 id 获取已发布曲目
	GetByID(ctx context.Context, id string) (*model.Track, error)

	// HasAudioURL 是否存在使用该音频地址的已发布曲目
	HasAudioURL(ctx context.Context, audioURL string) (bool, error)
}

// GormTrackRepository GORM 实现
type GormTrackRepository struct {
	db *gorm.DB
}

func NewGormTrackRepository(db *gorm.DB) *GormTrackRepository {
	return &GormTrackRepository{db: db}
}

func (r *GormTrackRepository) listQuery(ctx context.Context, source model.Source) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("source = ? AND published = ?", string(source), true).
		Order("position ASC").
		Order("id ASC")
}

func (r *GormTrackRepository) ListBySource(ctx context.Context, source model.Source) ([]model.Track, error) {
	var records []model.TrackRecord
	if err := r.listQuery(ctx, source).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list tracks by source %s: %w", source, err)
	}

	tracks := make([]model.Track, 0, len(records))
	for _, rec := range records {
		t := rec.ToTrack()
		if !t.Playable() {
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (r *GormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrTrackNotFound
	}

	var rec model.TrackRecord
	err = r.db.WithContext(ctx).Where("published = ?", true).First(&rec, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track %s: %w", id, err)
	}
	t := rec.ToTrack()
	return &t, nil
}

func (r *GormTrackRepository) audioURLQuery(ctx context.Context, audioURL string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.TrackRecord{}).
		Where("audio_url = ? AND published = ?", audioURL, true)
}

func (r *GormTrackRepository) HasAudioURL(ctx context.Context, audioURL string) (bool, error) {
	var n int64
	if err := r.audioURLQuery(ctx, audioURL).Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("lookup audio url: %w", err)
	}
	return n > 0, nil
}
