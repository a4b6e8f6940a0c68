package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr  string
	WebAppDir string // 前端页面目录
	UploadDir string // 拖入文件的暂存目录
	OutputDir string // 本地媒体存储目录 (MEDIA_BACKEND=local)
	WatchDir  string // watch 命令监听的投放目录

	// 解码配置
	DecodeWorkers int           // 解码 goroutine 数量
	DecodeTimeout time.Duration // 字段超时后标记为 failed，0 表示永不超时

	// 媒体存储: local 或 minio
	MediaBackend   string
	MediaURLPrefix string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// 会话令牌
	JWTSecret  string
	SessionTTL time.Duration

	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
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

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() *Config {
	dataBase := getEnv("DATA_DIR", "data")

	workers := getEnvInt("DECODE_WORKERS", runtime.NumCPU())
	if workers < 1 {
		workers = 1
	}

	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		WebAppDir: getEnv("WEB_APP_DIR", filepath.Join("web", "ui")),
		UploadDir: getEnv("UPLOAD_DIR", filepath.Join(dataBase, "uploads")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(dataBase, "media")),
		WatchDir:  getEnv("WATCH_DIR", filepath.Join(dataBase, "drop")),

		DecodeWorkers: workers,
		DecodeTimeout: getEnvDuration("DECODE_TIMEOUT", 2*time.Minute),

		MediaBackend:   getEnv("MEDIA_BACKEND", "local"),
		MediaURLPrefix: getEnv("MEDIA_URL_PREFIX", "/media/"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "ncmc"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 24*time.Hour),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: getEnvDuration("SESSION_TTL", 12*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
