package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	Port string

	// 数据库配置
	DBDriver        string // sqlite or mysql
	DBPath          string // sqlite file path
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBBusyTimeout   time.Duration
	DBRetryAttempts int

	// Redis配置
	RedisEnabled     bool
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	DocumentCacheTTL time.Duration

	// MinIO配置
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// Upstream timing archive
	LiveTimingBaseURL string
	UpstreamTimeout   time.Duration
	UpstreamRPS       float64
	LiveIndexTTL      time.Duration // running season Index.json, 0 disables caching

	// Transcription
	TranscribeAPIKey     string // plain secret or bcrypt hash
	Transcriber          string // whisper or openai
	WhisperPath          string
	WhisperModel         string
	WhisperLanguage      string
	STTAPIURL            string
	STTAPIKey            string
	STTModel             string
	TranscribeTimeout    time.Duration
	TranscribeRatePerMin int
	TempDir              string

	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
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

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "10m").
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

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:          getEnv("DB_PATH", "f1_data.db"),
		DBHost:          getEnv("DB_HOST", "127.0.0.1"),
		DBPort:          getEnv("DB_PORT", "3306"),
		DBUser:          getEnv("DB_USER", "root"),
		DBPassword:      os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:          getEnv("DB_NAME", "pitwall"),
		DBBusyTimeout:   time.Duration(getEnvInt("DB_BUSY_TIMEOUT_MS", 5000)) * time.Millisecond,
		DBRetryAttempts: getEnvInt("DB_RETRY_ATTEMPTS", 5),

		RedisEnabled:     getEnvBool("REDIS_ENABLED", false),
		RedisHost:        getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		DocumentCacheTTL: getEnvDuration("DOCUMENT_CACHE_TTL", 24*time.Hour),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "pitwall-radio"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		LiveTimingBaseURL: getEnv("LIVETIMING_BASE_URL", "https://livetiming.formula1.com/static/"),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRPS:       getEnvFloat("UPSTREAM_RPS", 4),
		LiveIndexTTL:      getEnvDuration("LIVE_INDEX_TTL", 10*time.Minute),

		TranscribeAPIKey:     os.Getenv("TRANSCRIBE_API_KEY"),
		Transcriber:          strings.ToLower(getEnv("TRANSCRIBER", "whisper")),
		WhisperPath:          getEnv("WHISPER_PATH", "whisper"),
		WhisperModel:         getEnv("WHISPER_MODEL", "turbo"),
		WhisperLanguage:      getEnv("WHISPER_LANGUAGE", "en"),
		STTAPIURL:            getEnv("STT_API_URL", "https://api.openai.com/v1"),
		STTAPIKey:            os.Getenv("STT_API_KEY"),
		STTModel:             getEnv("STT_MODEL", "whisper-1"),
		TranscribeTimeout:    getEnvDuration("TRANSCRIBE_TIMEOUT", 10*time.Minute),
		TranscribeRatePerMin: getEnvInt("TRANSCRIBE_RATE_PER_MIN", 6),
		TempDir:              getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "pitwall")),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}
