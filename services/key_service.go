package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"gorm.io/gorm"

	"shortlink/database"
	"shortlink/models"
)

const secretBytes = 48

// SystemKeyName labels the synthetic credential that adopts orphaned links.
const SystemKeyName = "system-migration"

// GenerateSecret returns a high-entropy URL-safe token for a new key.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Authenticate resolves a supplied secret to a credential.
//
//   - no secret and no active keys provisioned: (nil, nil), anonymous mode
//   - no secret but keys exist: ErrMissingKey
//   - unknown or revoked secret: ErrInvalidKey
//   - known but expired: ErrKeyExpired
//
// On success the key's usage counter and last_used_at are updated
// atomically in the store.
func Authenticate(secret string) (*models.APIKey, error) {
	if secret == "" {
		var active int64
		if err := database.DB.Model(&models.APIKey{}).
			Where("is_active = ?", true).Count(&active).Error; err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, ErrMissingKey
		}
		return nil, nil
	}

	var key models.APIKey
	result := database.DB.Where("key = ? AND is_active = ?", secret, true).First(&key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, result.Error
	}

	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrKeyExpired
	}

	now := time.Now()
	if err := database.DB.Model(&key).UpdateColumns(map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + ?", 1),
		"last_used_at": now,
	}).Error; err != nil {
		return nil, err
	}

	key.UsageCount++
	key.LastUsedAt = &now
	return &key, nil
}

// CreateKey provisions a new credential and returns it with the secret set.
// The secret is only available here; list and info paths never expose it.
func CreateKey(name string, expiresIn *time.Duration) (*models.APIKey, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if expiresIn != nil {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}

	key := models.APIKey{
		Key:       secret,
		Name:      name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := database.DB.Create(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// GetKey fetches a credential by ID.
func GetKey(id uint) (*models.APIKey, error) {
	var key models.APIKey
	result := database.DB.First(&key, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &key, nil
}

// ListKeys returns the active credentials, newest first.
func ListKeys() ([]models.APIKey, error) {
	var keys []models.APIKey
	result := database.DB.Where("is_active = ?", true).
		Order("created_at desc").Find(&keys)
	return keys, result.Error
}

// RevokeKey soft-deletes a credential. Its links keep their owner reference.
func RevokeKey(id uint) error {
	result := database.DB.Model(&models.APIKey{}).Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeKey hard-deletes a credential. Owned links are orphaned, not
// deleted; ReassignOrphans can later adopt them into the system key. Both
// statements commit or roll back together, so links are never orphaned
// while the key survives.
func PurgeKey(id uint) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Link{}).Where("key_id = ?", id).
			Update("key_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.APIKey{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ReassignOrphans assigns every ownerless link to the synthetic system key,
// creating that key on first use, all in one transaction. Returns the key
// and how many links moved.
func ReassignOrphans() (*models.APIKey, int64, error) {
	var key models.APIKey
	var moved int64

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", SystemKeyName).First(&key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			secret, serr := GenerateSecret()
			if serr != nil {
				return serr
			}
			key = models.APIKey{
				Key:       secret,
				Name:      SystemKeyName,
				CreatedAt: time.Now(),
				IsActive:  true,
			}
			if err := tx.Create(&key).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		result := tx.Model(&models.Link{}).Where("key_id IS NULL").
			Update("key_id", key.ID)
		if result.Error != nil {
			return result.Error
		}
		moved = result.RowsAffected
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &key, moved, nil
}
