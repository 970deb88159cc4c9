package models

import (
	"time"
)

// APIKey identifies an authorized caller. The secret is generated once on
// creation and never rotated in place; revocation flips IsActive.
type APIKey struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Key        string     `json:"-" gorm:"uniqueIndex;size:128;not null"`
	Name       string     `json:"name" gorm:"size:128;not null"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	UsageCount int        `json:"usage_count" gorm:"default:0"`
	IsActive   bool       `json:"is_active" gorm:"default:true"`
}

// Usable reports whether the key may authenticate a request at the given time.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || !now.After(*k.ExpiresAt)
}
