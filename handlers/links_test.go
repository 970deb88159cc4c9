package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shortlink/auth"
	"shortlink/config"
	"shortlink/database"
	"shortlink/logger"
	"shortlink/models"
	"shortlink/services"
	"shortlink/throttle"
)

func setupTestDB(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	database.DB = db
}

// setupRouter mirrors the wiring in main.go, minus the request-rate
// limiter.
func setupRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	config.App = &config.Config{BaseURL: "http://short.test"}
	setupTestDB(t)

	tracker := throttle.NewTracker()

	router := gin.New()
	router.GET("/:code", Redirect)

	api := router.Group("/api")
	api.Use(auth.APIKeyMiddleware(tracker))
	{
		api.POST("/shorten", CreateShortLink)
		api.POST("/shorten/batch", BatchCreateShortLinks)
		api.GET("/info/:code", GetLinkInfo)
		api.GET("/stats/:code", GetLinkStats)
		api.GET("/list", ListLinks)
		api.DELETE("/:code", DeleteLink)
		api.GET("/key/info", GetCurrentKeyInfo)
	}
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateShortLink(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "example.com/page"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.ShortCode, services.CodeLength)
	assert.Equal(t, "http://short.test/"+resp.ShortCode, resp.ShortURL)
	assert.Equal(t, "https://example.com/page", resp.OriginalURL)
	assert.Equal(t, 0, resp.ClickCount)
}

func TestCreateShortLinkCustomCodeConflict(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com", "custom_code": "test12"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://b.com", "custom_code": "test12"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateShortLinkBadCustomCode(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com", "custom_code": "ab!"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateShortLinkMinutesPrecedence(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{
		"url":                "https://a.com",
		"expires_in_hours":   5,
		"expires_in_minutes": 30,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *resp.ExpiresAt, time.Minute)
}

func TestRedirect(t *testing.T) {
	router := setupRouter(t)

	link, err := services.CreateLink("https://example.com/target", "hoppla", nil, nil)
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/hoppla", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/target", w.Header().Get("Location"))

	// The click event is recorded asynchronously.
	time.Sleep(50 * time.Millisecond)
	var count int64
	database.DB.Model(&models.ClickStat{}).Where("link_id = ?", link.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRedirectNotFoundAndGone(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/nosuch", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, database.DB.Create(&models.Link{
		ShortCode: "bygone", OriginalURL: "https://a.com", CreatedAt: time.Now(), ExpiresAt: &past,
	}).Error)

	w = doJSON(router, http.MethodGet, "/bygone", nil, "")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestBatchCreate(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten/batch", gin.H{
		"urls": []string{"https://a.com", "https://b.com", ""},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestBatchCreateAllFail(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/shorten/batch", gin.H{
		"urls": []string{"", "   "},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequiredWhenKeysExist(t *testing.T) {
	router := setupRouter(t)

	key, err := services.CreateKey("ci", nil)
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com"}, "wrong-secret")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com"}, key.Key)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAPIKeyViaQueryParam(t *testing.T) {
	router := setupRouter(t)

	key, err := services.CreateKey("ci", nil)
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/key/info?api_key="+key.Key, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "ci", resp["name"])
}

func TestKeyInfoAnonymous(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/key/info", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["authenticated"])
}

func TestOwnershipOnInfoAndDelete(t *testing.T) {
	router := setupRouter(t)

	owner, err := services.CreateKey("owner", nil)
	require.NoError(t, err)
	other, err := services.CreateKey("other", nil)
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://a.com", "custom_code": "owned1"}, owner.Key)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/info/owned1", nil, other.Key)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodGet, "/api/info/owned1", nil, owner.Key)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/owned1", nil, other.Key)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/owned1", nil, owner.Key)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/owned1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThrottleBansRepeatedFailures(t *testing.T) {
	router := setupRouter(t)

	key, err := services.CreateKey("ci", nil)
	require.NoError(t, err)

	for i := 0; i < throttle.MaxFailures; i++ {
		w := doJSON(router, http.MethodGet, "/api/key/info", nil, "wrong-secret")
		assert.Equal(t, http.StatusForbidden, w.Code)
	}

	// Even a valid credential is rejected while the address is banned.
	w := doJSON(router, http.MethodGet, "/api/key/info", nil, key.Key)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Greater(t, resp["retry_after"].(float64), 0.0)
}

func TestListLinksScopedToCaller(t *testing.T) {
	router := setupRouter(t)

	a, err := services.CreateKey("a", nil)
	require.NoError(t, err)
	b, err := services.CreateKey("b", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": fmt.Sprintf("https://a.com/%d", i)}, a.Key)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := doJSON(router, http.MethodPost, "/api/shorten", gin.H{"url": "https://b.com"}, b.Key)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/list", nil, a.Key)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Links []LinkResponse `json:"links"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp.Total)
	assert.Len(t, resp.Links, 3)
}

func TestStatsIncludesRecentClicks(t *testing.T) {
	router := setupRouter(t)

	_, err := services.CreateLink("https://example.com", "statty", nil, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := doJSON(router, http.MethodGet, "/statty", nil, "")
		require.Equal(t, http.StatusFound, w.Code)
	}
	time.Sleep(50 * time.Millisecond)

	w := doJSON(router, http.MethodGet, "/api/stats/statty", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ClickCount   int                `json:"click_count"`
		RecentClicks []models.ClickStat `json:"recent_clicks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ClickCount)
	assert.Len(t, resp.RecentClicks, 2)
}
