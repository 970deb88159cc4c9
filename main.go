package main

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"shortlink/auth"
	"shortlink/config"
	"shortlink/database"
	"shortlink/handlers"
	"shortlink/logger"
	"shortlink/middleware"
	"shortlink/services"
	"shortlink/throttle"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)

	logger.Info().Str("environment", cfg.Env).Str("driver", cfg.DBDriver).Msg("Starting shortlink service")

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	database.Connect(cfg)
	services.CodeLength = cfg.CodeLength

	tracker := throttle.NewTracker()
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	// Redirects are public in every deployment mode.
	router.GET("/:code", handlers.Redirect)

	api := router.Group("/api")
	api.Use(auth.APIKeyMiddleware(tracker))
	{
		api.POST("/shorten", middleware.RateLimit(limiter), handlers.CreateShortLink)
		api.POST("/shorten/batch", middleware.RateLimit(limiter), handlers.BatchCreateShortLinks)

		api.GET("/info/:code", handlers.GetLinkInfo)
		api.GET("/stats/:code", handlers.GetLinkStats)
		api.GET("/list", handlers.ListLinks)
		api.DELETE("/:code", handlers.DeleteLink)

		api.GET("/key/info", handlers.GetCurrentKeyInfo)
	}

	logger.Info().Str("port", cfg.Port).Msg("Shortlink service listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
