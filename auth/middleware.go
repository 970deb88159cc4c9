package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shortlink/logger"
	"shortlink/services"
	"shortlink/throttle"
)

const keyIDContextKey = "keyID"

// ClientAddr derives the originating address: X-Forwarded-For first entry,
// then X-Real-IP, then the transport-level peer.
func ClientAddr(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// APIKeyMiddleware authenticates requests with an API key from the
// X-API-Key header or the api_key query parameter (header wins). Banned
// addresses are rejected before any credential lookup. When no active keys
// are provisioned the request proceeds anonymously with no owner identity.
func APIKeyMiddleware(tracker *throttle.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := ClientAddr(c)

		if banned, remaining := tracker.IsBanned(addr); banned {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many failed attempts, access temporarily restricted",
				"retry_after": int(remaining.Seconds()),
			})
			c.Abort()
			return
		}

		secret := c.GetHeader("X-API-Key")
		if secret == "" {
			secret = c.Query("api_key")
		}

		key, err := services.Authenticate(secret)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrMissingKey):
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "missing API key: supply the X-API-Key header or api_key query parameter",
				})
			case errors.Is(err, services.ErrInvalidKey):
				if tracker.RecordFailure(addr) {
					logger.Warn().Str("addr", addr).Msg("Address banned after repeated auth failures")
				}
				c.JSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			case errors.Is(err, services.ErrKeyExpired):
				if tracker.RecordFailure(addr) {
					logger.Warn().Str("addr", addr).Msg("Address banned after repeated auth failures")
				}
				c.JSON(http.StatusForbidden, gin.H{"error": "API key has expired"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			}
			c.Abort()
			return
		}

		if key != nil {
			c.Set(keyIDContextKey, key.ID)
		}
		c.Next()
	}
}

// KeyID returns the authenticated credential's ID, or nil for anonymous
// requests.
func KeyID(c *gin.Context) *uint {
	v, exists := c.Get(keyIDContextKey)
	if !exists {
		return nil
	}
	id := v.(uint)
	return &id
}
