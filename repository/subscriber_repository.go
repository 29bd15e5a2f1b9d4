package repository

import (
	"context"
	"fmt"
	"strings"

	"StudioFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriberRepository 订阅通知的邮箱
type SubscriberRepository interface {
	Create(ctx context.Context, email string) error
}

type GormSubscriberRepository struct {
	db *gorm.DB
}

func NewGormSubscriberRepository(db *gorm.DB) *GormSubscriberRepository {
	return &GormSubscriberRepository{db: db}
}

// Create 重复订阅直接忽略
func (r *GormSubscriberRepository) Create(ctx context.Context, email string) error {
	sub := model.Subscriber{Email: strings.ToLower(strings.TrimSpace(email))}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sub).Error
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}
