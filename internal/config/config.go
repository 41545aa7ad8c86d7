// Package config provides configuration for the training backend.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SparkConfig holds the connection settings for one assistant persona.
type SparkConfig struct {
	WSURL       string
	AppID       string
	APIKey      string
	APISecret   string
	Domain      string
	Temperature float64
	MaxTokens   int
	TopK        int
}

// ChatDocConfig holds the knowledge-base service settings.
type ChatDocConfig struct {
	AppID     string
	APISecret string
	BaseURL   string
	WSURL     string
}

// ReportConfig holds the report-generation service settings.
type ReportConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config holds the full backend configuration.
type Config struct {
	HTTPPort     int
	DatabasePath string

	Red     SparkConfig
	Blue    SparkConfig
	ChatDoc ChatDocConfig
	Report  ReportConfig

	// TurnTimeout bounds one full turn (optional KB search plus the
	// persona exchange). The streaming clients themselves enforce no
	// deadline.
	TurnTimeout time.Duration
}

// Load loads configuration from the environment. A .env file in the
// working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:     getEnvInt("HTTP_PORT", 8080),
		DatabasePath: getEnv("DATABASE_PATH", "preplay.db"),
		Red: SparkConfig{
			WSURL:       getEnv("XUNFEI_RED_WS_URL", ""),
			AppID:       getEnv("XUNFEI_RED_APP_ID", ""),
			APIKey:      getEnv("XUNFEI_RED_API_KEY", ""),
			APISecret:   getEnv("XUNFEI_RED_API_SECRET", ""),
			Domain:      getEnv("XUNFEI_RED_DOMAIN", "generalv3.5"),
			Temperature: 0.7,
			MaxTokens:   2048,
			TopK:        5,
		},
		Blue: SparkConfig{
			WSURL:       getEnv("XUNFEI_BLUE_WS_URL", ""),
			AppID:       getEnv("XUNFEI_BLUE_APP_ID", ""),
			APIKey:      getEnv("XUNFEI_BLUE_API_KEY", ""),
			APISecret:   getEnv("XUNFEI_BLUE_API_SECRET", ""),
			Domain:      getEnv("XUNFEI_BLUE_DOMAIN", "generalv3.5"),
			Temperature: 0.7,
			MaxTokens:   2048,
			TopK:        5,
		},
		ChatDoc: ChatDocConfig{
			AppID:     getEnv("CHATDOC_APP_ID", ""),
			APISecret: getEnv("CHATDOC_API_SECRET", ""),
			BaseURL:   getEnv("CHATDOC_BASE_URL", "https://chatdoc.xfyun.cn"),
			WSURL:     getEnv("CHATDOC_WS_URL", "wss://chatdoc.xfyun.cn/openapi/chat"),
		},
		Report: ReportConfig{
			APIKey:  getEnv("MOONSHOT_API_KEY", ""),
			BaseURL: getEnv("MOONSHOT_API_URL", "https://api.moonshot.cn/v1"),
			Model:   getEnv("MOONSHOT_MODEL", "moonshot-v1-8k"),
		},
		TurnTimeout: time.Duration(getEnvInt("TURN_TIMEOUT_MS", 120000)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
