package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port    string
	Env     string
	BaseURL string

	// DBDriver selects the storage backend: "postgres" or "sqlite".
	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	DBPath     string

	CodeLength     int
	RateLimitRPS   int
	RateLimitBurst int
}

var App *Config

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("GO_ENV", "development")
	viper.SetDefault("BASE_URL", "http://localhost:8080")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "127.0.0.1")
	viper.SetDefault("DB_USER", "shortlink")
	viper.SetDefault("DB_PASSWORD", "shortlink")
	viper.SetDefault("DB_NAME", "shortlink")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_PATH", "./data/shortlink.db")
	viper.SetDefault("CODE_LENGTH", 6)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)

	cfg := &Config{
		Port:           viper.GetString("PORT"),
		Env:            viper.GetString("GO_ENV"),
		BaseURL:        strings.TrimRight(viper.GetString("BASE_URL"), "/"),
		DBDriver:       viper.GetString("DB_DRIVER"),
		DBHost:         viper.GetString("DB_HOST"),
		DBUser:         viper.GetString("DB_USER"),
		DBPassword:     viper.GetString("DB_PASSWORD"),
		DBName:         viper.GetString("DB_NAME"),
		DBPort:         viper.GetString("DB_PORT"),
		DBSSLMode:      viper.GetString("DB_SSLMODE"),
		DBPath:         viper.GetString("DB_PATH"),
		CodeLength:     viper.GetInt("CODE_LENGTH"),
		RateLimitRPS:   viper.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst: viper.GetInt("RATE_LIMIT_BURST"),
	}

	if cfg.CodeLength < 6 || cfg.CodeLength > 10 {
		cfg.CodeLength = 6
	}

	App = cfg
	return cfg
}
