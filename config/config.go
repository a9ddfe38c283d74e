package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration for both the server and the
// headless client commands.
type Config struct {
	HTTPAddr string

	// Database
	DBDriver     string // mysql, postgres or sqlite
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSQLitePath string

	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	QueueCacheTTL time.Duration

	// Append rate limiting
	RateLimitWindow     time.Duration
	RateLimitMaxAppends int

	// Client side
	ServerURL        string
	IdentityFile     string
	SyncInterval     time.Duration
	PositionInterval time.Duration
	SettleDelay      time.Duration

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

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
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration syntax ("5m", "500ms").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if one exists. godotenv never overrides
// variables that are already set.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	home, _ := os.UserHomeDir()

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:       getEnv("DB_HOST", "127.0.0.1"),
		DBPort:       getEnv("DB_PORT", "3306"),
		DBUser:       getEnv("DB_USER", "root"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBName:       getEnv("DB_NAME", "vibeq"),
		DBSQLitePath: getEnv("DB_SQLITE_PATH", "vibeq.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		QueueCacheTTL: getEnvDuration("QUEUE_CACHE_TTL", 30*time.Second),

		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 5*time.Minute),
		RateLimitMaxAppends: getEnvInt("RATE_LIMIT_MAX_APPENDS", 2),

		ServerURL:        strings.TrimRight(getEnv("VIBEQ_SERVER", "http://127.0.0.1:8080"), "/"),
		IdentityFile:     getEnv("VIBEQ_IDENTITY_FILE", home+"/.vibeq/identity"),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 3*time.Second),
		PositionInterval: getEnvDuration("POSITION_INTERVAL", time.Second),
		SettleDelay:      getEnvDuration("SETTLE_DELAY", 500*time.Millisecond),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
