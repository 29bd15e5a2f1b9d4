package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSessionSecret 仅用于本地开发，生产环境必须通过 SESSION_SECRET 覆盖
const DefaultSessionSecret = "studiofm-dev-secret"

// Config stores the application configuration.
type Config struct {
	AppEnv    string // development 或 production
	HTTPAddr  string
	OriginURL string // 静态站点源站地址，资产缓存层回源使用

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 会话配置
	SessionTTL     time.Duration // 会话歌单在 Redis 中的存活时间
	SessionSecret  string        // sid cookie 签名密钥
	TabIdleTimeout time.Duration // 内存中播放器状态的空闲回收时间

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// 资产缓存配置
	AssetCacheBackend string // memory 或 minio
	AssetCachePrefix  string // 缓存名前缀，完整名为 <prefix>-<version>
	AssetManifest     string // 构建产物清单路径

	// 封面提取配置
	ArtworkMaxBytes    int64
	ArtworkTimeout     time.Duration
	ArtworkConcurrency int

	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool 支持 true/false/1/0
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration 解析 time.ParseDuration 格式，例如 "5s"、"24h"
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// sessionSecret 空值与未设置同样处理，签名密钥不能为空
func sessionSecret() string {
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		return v
	}
	return DefaultSessionSecret
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		OriginURL: getEnv("ORIGIN_URL", "http://127.0.0.1:3000"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "studio"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionSecret:  sessionSecret(),
		TabIdleTimeout: getEnvDuration("TAB_IDLE_TIMEOUT", 2*time.Hour),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "studiofm"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		AssetCacheBackend: getEnv("ASSET_CACHE_BACKEND", "memory"),
		AssetCachePrefix:  getEnv("ASSET_CACHE_PREFIX", "studiofm-assets"),
		AssetManifest:     getEnv("ASSET_MANIFEST", "build/asset-manifest.json"),

		ArtworkMaxBytes:    getEnvInt64("ARTWORK_MAX_BYTES", 512*1024),
		ArtworkTimeout:     getEnvDuration("ARTWORK_TIMEOUT", 5*time.Second),
		ArtworkConcurrency: getEnvInt("ARTWORK_CONCURRENCY", 4),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "logs/studiofm.log"),
	}
}

// DefaultSecret 是否仍在使用开发用签名密钥
func (c *Config) DefaultSecret() bool {
	return c.SessionSecret == DefaultSessionSecret
}

// Validate 生产环境拒绝使用开发用签名密钥，否则任何人都能伪造会话
func (c *Config) Validate() error {
	if c.AppEnv == "production" && c.DefaultSecret() {
		return errors.New("SESSION_SECRET must be set in production")
	}
	return nil
}

// RedisEnabled Redis 主机留空时使用内存会话存储
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
