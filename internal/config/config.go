package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアの実装を選択するSTORE_DRIVERの値。
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// CallbackPath は署名プロバイダからのコールバックを受け付けるパス。
const CallbackPath = "/api/okidoki/callback"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver string
	StoreSeed   bool
	DatabaseURL string

	// OkiDoki
	OkiDokiAPIKey   string
	OkiDokiBaseURL  string
	OkiDokiSource   string
	ProviderTimeout time.Duration

	// Send lock
	RedisAddr   string
	SendLockTTL time.Duration

	// Uploads (S3)
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	UploadURLTTL      time.Duration

	// File fetch
	FileFetchTimeout time.Duration
	FileFetchMaxSize int64

	// Rate Limit (req/min/IP)
	RateLimitGeneral  int
	RateLimitCallback int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// CallbackURL は署名プロバイダに渡すコールバックの絶対URLを返す。
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + CallbackPath
}

// UploadsEnabled はS3へのアップロードが設定されているかを返す。
func (c *Config) UploadsEnabled() bool {
	return c.S3Bucket != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q: %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == StoreDriverPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.OkiDokiAPIKey = os.Getenv("OKIDOKI_API_KEY")
	if cfg.OkiDokiAPIKey == "" {
		missing = append(missing, "OKIDOKI_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreSeed = getEnvBool("STORE_SEED", false)
	cfg.OkiDokiBaseURL = getEnvString("OKIDOKI_BASE_URL", "api.doki.online")
	cfg.OkiDokiSource = getEnvString("OKIDOKI_SOURCE", "alluna-app")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.SendLockTTL = getEnvDuration("SEND_LOCK_TTL", 60*time.Second)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKeyID = getEnvString("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvString("S3_SECRET_ACCESS_KEY", "")
	cfg.UploadURLTTL = getEnvDuration("UPLOAD_URL_TTL", 5*time.Minute)
	cfg.FileFetchTimeout = getEnvDuration("FILE_FETCH_TIMEOUT", 10*time.Second)
	cfg.FileFetchMaxSize = getEnvInt64("FILE_FETCH_MAX_SIZE", 20<<20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCallback = getEnvInt("RATE_LIMIT_CALLBACK", 600)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
