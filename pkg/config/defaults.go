// Package config provides centralized default values for drillgate
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

// loadEnvFile applies .env without overriding variables already set.
func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		log.Println("Loading configuration overrides from .env file...")
		if err := godotenv.Load(); err != nil {
			log.Printf("Failed to read .env: %v", err)
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue && !isSecret(key) {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := getEnvString(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isSecret(key string) bool {
	return strings.Contains(key, "SECRET") || strings.Contains(key, "TOKEN") ||
		strings.Contains(key, "PASSWORD") || strings.Contains(key, "API_KEY")
}

// Store drivers
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreTurso  = "turso"
	StoreRedis  = "redis"
)

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// State Store
	StoreDriver   string
	SQLitePath    string
	TursoURL      string
	TursoToken    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Database Pool
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBConnMaxIdleTime  time.Duration
	SlowQueryThreshold time.Duration

	// State Retention
	GateStateTTL    time.Duration
	CleanupInterval time.Duration

	// Identity and Broker Confirmation
	IdentityTokenSecret string
	IdentityTokenTTL    time.Duration
	BrokerCodeSecret    string

	// Email
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string
	SiteURL       string

	// Stream
	StreamPingInterval time.Duration
	StreamSendBuffer   int

	// Logging
	LogLevel     string
	LogJSON      bool
	LogToFile    bool
	LogDirectory string

	// Gate thresholds file
	GateConfigFile string
)

func init() {
	loadEnvFile()
	Load()
}

// Load reads every setting from the environment. It runs at init and again
// from tests after t.Setenv.
func Load() {
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4321"})

	StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreSQLite))
	SQLitePath = getEnvString("SQLITE_PATH", "data/drillgate.db")
	TursoURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoToken = getEnvString("TURSO_AUTH_TOKEN", "")
	RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	RedisPassword = getEnvString("REDIS_PASSWORD", "")
	RedisDB = getEnvInt("REDIS_DB", 0)

	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	DBConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)

	GateStateTTL = getEnvDuration("GATE_STATE_TTL", 0)
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 30*time.Minute)

	IdentityTokenSecret = getEnvString("IDENTITY_TOKEN_SECRET", "")
	IdentityTokenTTL = getEnvDuration("IDENTITY_TOKEN_TTL", 30*24*time.Hour)
	BrokerCodeSecret = getEnvString("BROKER_CODE_SECRET", "")

	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	EmailFrom = getEnvString("EMAIL_FROM", "drills@example.com")
	EmailFromName = getEnvString("EMAIL_FROM_NAME", "Drill Library")
	SiteURL = getEnvString("SITE_URL", "http://localhost:4321")

	StreamPingInterval = getEnvDuration("STREAM_PING_INTERVAL", 30*time.Second)
	StreamSendBuffer = getEnvInt("STREAM_SEND_BUFFER", 16)

	LogLevel = getEnvString("LOG_LEVEL", "INFO")
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")

	GateConfigFile = getEnvString("GATE_CONFIG_FILE", "")
}
