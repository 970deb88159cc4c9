package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shortlink/auth"
	"shortlink/services"
)

// GetCurrentKeyInfo handles GET /api/key/info, reporting on the credential
// that authenticated this request.
func GetCurrentKeyInfo(c *gin.Context) {
	keyID := auth.KeyID(c)
	if keyID == nil {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"message":       "authentication is not enabled on this deployment",
		})
		return
	}

	key, err := services.GetKey(*keyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	// The key authenticated this request, so it is active; unusable here
	// can only mean expired since then.
	expired := !key.Usable(time.Now())
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"name":          key.Name,
		"created_at":    key.CreatedAt,
		"expires_at":    key.ExpiresAt,
		"is_expired":    expired,
		"usage_count":   key.UsageCount,
		"last_used_at":  key.LastUsedAt,
	})
}
