// Package config はアプリケーション設定の読み込みと保持を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 実行中に変更可能な設定（同期先URL・接続トークン・更新間隔）はSettingsが管理する。
type Config struct {
	// Database
	DatabaseURL string

	// 管理UI認証
	AdminPassword string
	SessionTTL    time.Duration

	// 外部API認証
	APIKey string

	// ブラウザ
	ProfilesDir       string
	Headless          bool
	TargetURL         string
	LoginURL          string
	TargetOrigin      string
	SessionCookieName string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration

	// 同期
	PushTimeout  time.Duration
	SettingsFile string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.ProfilesDir = getEnvString("PROFILES_DIR", "data/profiles")
	cfg.Headless = getEnvBool("HEADLESS", false)
	cfg.TargetURL = getEnvString("TARGET_URL", "https://labs.google/fx/tools/flow")
	cfg.LoginURL = getEnvString("LOGIN_URL", "https://labs.google/fx/api/auth/signin/google")
	cfg.TargetOrigin = getEnvString("TARGET_ORIGIN", "https://labs.google")
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "__Secure-next-auth.session-token")
	cfg.NavigationTimeout = getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second)
	cfg.SettleDelay = getEnvDuration("SETTLE_DELAY", 2*time.Second)
	cfg.PushTimeout = getEnvDuration("PUSH_TIMEOUT", 30*time.Second)
	cfg.SettingsFile = getEnvString("SETTINGS_FILE", "data/settings.json")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
