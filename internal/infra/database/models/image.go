package models

import (
	"time"
)

type Image struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	Title      string    `json:"title" gorm:"type:text;not null"`
	URL        string    `json:"url" gorm:"type:text;not null"`
	MediaRef   string    `json:"mediaRef" gorm:"type:text;not null"`
	UploadedBy string    `json:"uploadedBy" gorm:"type:text;not null;default:'Anonymous'"`
	CreatedAt  time.Time `json:"createdAt" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp();index:idx_images_created_at,sort:desc"`
}
