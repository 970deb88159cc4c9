package models

import (
	"time"
)

type Link struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	ShortCode    string      `json:"short_code" gorm:"uniqueIndex;size:10;not null"`
	OriginalURL  string      `json:"original_url" gorm:"type:text;not null"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    *time.Time  `json:"expires_at"`
	ClickCount   int         `json:"click_count" gorm:"default:0"`
	LastAccessed *time.Time  `json:"last_accessed"`
	KeyID        *uint       `json:"key_id" gorm:"index"`
	ClickStats   []ClickStat `json:"click_stats,omitempty" gorm:"foreignKey:LinkID"`
}
