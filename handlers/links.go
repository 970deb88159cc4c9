package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shortlink/auth"
	"shortlink/config"
	"shortlink/logger"
	"shortlink/models"
	"shortlink/services"
)

type CreateLinkRequest struct {
	URL              string `json:"url" binding:"required"`
	CustomCode       string `json:"custom_code"`
	ExpiresInHours   *int   `json:"expires_in_hours"`
	ExpiresInMinutes *int   `json:"expires_in_minutes"`
}

type BatchCreateRequest struct {
	URLs           []string `json:"urls" binding:"required"`
	ExpiresInHours *int     `json:"expires_in_hours"`
}

type LinkResponse struct {
	ShortCode    string     `json:"short_code"`
	ShortURL     string     `json:"short_url"`
	OriginalURL  string     `json:"original_url"`
	CreatedAt    time.Time  `json:"created_at"`
	ClickCount   int        `json:"click_count"`
	LastAccessed *time.Time `json:"last_accessed"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func linkResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ShortCode:    link.ShortCode,
		ShortURL:     config.App.BaseURL + "/" + link.ShortCode,
		OriginalURL:  link.OriginalURL,
		CreatedAt:    link.CreatedAt,
		ClickCount:   link.ClickCount,
		LastAccessed: link.LastAccessed,
		ExpiresAt:    link.ExpiresAt,
	}
}

// ttlFromRequest computes the TTL; minutes take precedence over hours when
// both are given.
func ttlFromRequest(hours, minutes *int) *time.Duration {
	if minutes != nil && *minutes > 0 {
		d := time.Duration(*minutes) * time.Minute
		return &d
	}
	if hours != nil && *hours > 0 {
		d := time.Duration(*hours) * time.Hour
		return &d
	}
	return nil
}

// CreateShortLink handles POST /api/shorten.
func CreateShortLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := ttlFromRequest(req.ExpiresInHours, req.ExpiresInMinutes)
	link, err := services.CreateLink(req.URL, req.CustomCode, ttl, auth.KeyID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid URL or custom code format"})
		case errors.Is(err, services.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "short code '" + req.CustomCode + "' is already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create short link"})
		}
		return
	}

	c.JSON(http.StatusCreated, linkResponse(link))
}

// BatchCreateShortLinks handles POST /api/shorten/batch. Items fail
// independently; the request fails only when nothing succeeded.
func BatchCreateShortLinks(c *gin.Context) {
	var req BatchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "urls must not be empty"})
		return
	}

	ttl := ttlFromRequest(req.ExpiresInHours, nil)
	created, failures := services.BatchCreate(req.URLs, ttl, auth.KeyID(c))

	if len(created) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no URLs could be shortened", "details": failures})
		return
	}

	responses := make([]LinkResponse, 0, len(created))
	for _, link := range created {
		responses = append(responses, linkResponse(link))
	}
	c.JSON(http.StatusOK, responses)
}

// Redirect handles GET /:code. This path is always public.
func Redirect(c *gin.Context) {
	code := c.Param("code")

	link, err := services.ResolveLink(code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "short link not found"})
		case errors.Is(err, services.ErrExpired):
			c.JSON(http.StatusGone, gin.H{"error": "short link has expired"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redirect failed"})
		}
		return
	}

	referrer := c.Request.Referer()
	userAgent := c.Request.UserAgent()
	addr := auth.ClientAddr(c)

	go func() {
		if err := services.RecordClick(link, referrer, userAgent, addr); err != nil {
			logger.Error().Err(err).Str("code", link.ShortCode).Msg("Failed to record click")
		}
	}()

	c.Redirect(http.StatusFound, link.OriginalURL)
}

// GetLinkInfo handles GET /api/info/:code.
func GetLinkInfo(c *gin.Context) {
	link, ok := fetchAuthorized(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, linkResponse(link))
}

// GetLinkStats handles GET /api/stats/:code, adding recent click events to
// the counters.
func GetLinkStats(c *gin.Context) {
	link, ok := fetchAuthorized(c)
	if !ok {
		return
	}

	clicks, err := services.RecentClicks(link.ID, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load click stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"short_code":    link.ShortCode,
		"original_url":  link.OriginalURL,
		"click_count":   link.ClickCount,
		"created_at":    link.CreatedAt,
		"last_accessed": link.LastAccessed,
		"recent_clicks": clicks,
	})
}

// ListLinks handles GET /api/list with skip/limit pagination. Identified
// callers see only their own links; anonymous mode sees everything.
func ListLinks(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	links, total, err := services.ListLinks(auth.KeyID(c), skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list links"})
		return
	}

	responses := make([]LinkResponse, 0, len(links))
	for i := range links {
		responses = append(responses, linkResponse(&links[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"links": responses,
		"total": total,
		"skip":  skip,
		"limit": limit,
	})
}

// DeleteLink handles DELETE /api/:code.
func DeleteLink(c *gin.Context) {
	code := c.Param("code")

	if err := services.DeleteLink(code, auth.KeyID(c)); err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "short link not found"})
		case errors.Is(err, services.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to delete this link"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete link"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "short link '" + code + "' deleted"})
}

// fetchAuthorized loads the link for record-scoped endpoints and applies
// the ownership rule, writing the error response itself on failure.
func fetchAuthorized(c *gin.Context) (*models.Link, bool) {
	code := c.Param("code")

	link, err := services.GetLink(code)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "short link not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		}
		return nil, false
	}

	if !services.CanAccess(link, auth.KeyID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to view this link"})
		return nil, false
	}
	return link, true
}
