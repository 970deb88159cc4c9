package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"shortlink/database"
	"shortlink/models"
	"shortlink/shortcode"
)

// CodeLength is the length of generated short codes. Overridden from config
// at startup.
var CodeLength = shortcode.DefaultLength

// CreateLink normalizes and validates the URL, allocates or validates the
// short code, and persists the record. Uniqueness is enforced by the store's
// unique index: generated codes retry on a duplicate-key error, custom codes
// surface it as ErrConflict.
func CreateLink(originalURL, customCode string, ttl *time.Duration, keyID *uint) (*models.Link, error) {
	if strings.TrimSpace(originalURL) == "" {
		return nil, ErrInvalidFormat
	}
	originalURL = shortcode.Normalize(originalURL)
	if !shortcode.Validate(originalURL) {
		return nil, ErrInvalidFormat
	}

	var expiresAt *time.Time
	if ttl != nil {
		t := time.Now().Add(*ttl)
		expiresAt = &t
	}

	if customCode != "" {
		if !shortcode.ValidCustomCode(customCode) {
			return nil, ErrInvalidFormat
		}
		link := models.Link{
			ShortCode:   customCode,
			OriginalURL: originalURL,
			CreatedAt:   time.Now(),
			ExpiresAt:   expiresAt,
			KeyID:       keyID,
		}
		if err := database.DB.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrConflict
			}
			return nil, err
		}
		return &link, nil
	}

	for {
		code, err := shortcode.Generate(CodeLength)
		if err != nil {
			return nil, err
		}
		link := models.Link{
			ShortCode:   code,
			OriginalURL: originalURL,
			CreatedAt:   time.Now(),
			ExpiresAt:   expiresAt,
			KeyID:       keyID,
		}
		err = database.DB.Create(&link).Error
		if err == nil {
			return &link, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// Collision with a live code; draw again.
	}
}

// BatchCreate shortens every URL independently. One bad URL does not abort
// the rest; the caller decides what to do when nothing succeeded.
func BatchCreate(urls []string, ttl *time.Duration, keyID *uint) ([]*models.Link, []string) {
	var created []*models.Link
	var failures []string
	for _, raw := range urls {
		link, err := CreateLink(strings.TrimSpace(raw), "", ttl, keyID)
		if err != nil {
			failures = append(failures, raw+": "+err.Error())
			continue
		}
		created = append(created, link)
	}
	return created, failures
}

// GetLink returns the record for a code, expired ones included.
func GetLink(code string) (*models.Link, error) {
	var link models.Link
	result := database.DB.Where("short_code = ?", code).First(&link)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &link, nil
}

// ResolveLink is the redirect read path: it returns the live record after
// atomically incrementing click_count and stamping last_accessed. Expired
// links return ErrExpired without mutating anything.
func ResolveLink(code string) (*models.Link, error) {
	link, err := GetLink(code)
	if err != nil {
		return nil, err
	}

	if link.ExpiresAt != nil && link.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpired
	}

	now := time.Now()
	result := database.DB.Model(link).UpdateColumns(map[string]interface{}{
		"click_count":   gorm.Expr("click_count + ?", 1),
		"last_accessed": now,
	})
	if result.Error != nil {
		return nil, result.Error
	}

	link.ClickCount++
	link.LastAccessed = &now
	return link, nil
}

// RecordClick stores a per-access event for the stats endpoint. Callers may
// run this in a goroutine; a lost event does not affect click_count.
func RecordClick(link *models.Link, referrer, userAgent, ipAddress string) error {
	stat := models.ClickStat{
		LinkID:      link.ID,
		ClickedAt:   time.Now(),
		ReferrerURL: referrer,
		UserAgent:   userAgent,
		IPAddress:   ipAddress,
	}
	return database.DB.Create(&stat).Error
}

// RecentClicks returns the newest click events for a link.
func RecentClicks(linkID uint, limit int) ([]models.ClickStat, error) {
	var stats []models.ClickStat
	result := database.DB.Where("link_id = ?", linkID).
		Order("clicked_at desc").Limit(limit).Find(&stats)
	return stats, result.Error
}

// CanAccess applies the record-scoped authorization rule: anonymous callers
// reach any record, identified callers only records they own or records
// without an owner.
func CanAccess(link *models.Link, keyID *uint) bool {
	if keyID == nil || link.KeyID == nil {
		return true
	}
	return *link.KeyID == *keyID
}

// DeleteLink removes a link, enforcing the same ownership rule as reads.
// The link and its click history go in one transaction so a failure leaves
// both intact.
func DeleteLink(code string, keyID *uint) error {
	link, err := GetLink(code)
	if err != nil {
		return err
	}
	if !CanAccess(link, keyID) {
		return ErrForbidden
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", link.ID).Delete(&models.ClickStat{}).Error; err != nil {
			return err
		}
		return tx.Delete(link).Error
	})
}

// ListLinks returns links with offset pagination, filtered to an owner when
// one is given, plus the total matching count.
func ListLinks(keyID *uint, skip, limit int) ([]models.Link, int64, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := database.DB.Model(&models.Link{})
	if keyID != nil {
		query = query.Where("key_id = ?", *keyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var links []models.Link
	result := query.Order("created_at desc").Offset(skip).Limit(limit).Find(&links)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return links, total, nil
}

// SweepExpired hard-deletes links whose expiry has passed and returns the
// number removed.
func SweepExpired() (int64, error) {
	result := database.DB.Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&models.Link{})
	return result.RowsAffected, result.Error
}
