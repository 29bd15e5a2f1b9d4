package model

import "time"

// Subscriber 新作品通知订阅者
type Subscriber struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (Subscriber) TableName() string {
	return "subscribers"
}
