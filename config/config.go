package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DBTypeSQLite   = "sqlite3"
	DBTypePostgres = "postgres"

	BlobBackendDisk   = "disk"
	BlobBackendBadger = "badger"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port           string
	DatabaseType   string
	DatabaseURL    string
	JwtSecret      string
	TokenTTL       time.Duration
	BlobBackend    string
	UploadDir      string
	BadgerDir      string
	MaxUploadBytes int64
	AllowedOrigins []string
	DevMode        bool
	LogLevel       string
	LogFormat      string
	WSRatePerSec   float64
	WSRateBurst    int
}

// Load reads a .env file if one exists and builds the config from the
// environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getEnv("PORT", "3001"),
		DatabaseType:   getEnv("DB_TYPE", DBTypeSQLite),
		DatabaseURL:    getEnv("DATABASE_URL", "./data/chuckafile.db"),
		JwtSecret:      getEnv("JWT_SECRET", ""),
		TokenTTL:       time.Duration(getEnvInt("TOKEN_TTL_HOURS", 7*24)) * time.Hour,
		BlobBackend:    getEnv("BLOB_BACKEND", BlobBackendDisk),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		BadgerDir:      getEnv("BADGER_DIR", "./data/blobs"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 100)) << 20,
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		DevMode:        getEnvBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		WSRatePerSec:   getEnvFloat("WS_RATE_PER_SEC", 10),
		WSRateBurst:    getEnvInt("WS_RATE_BURST", 20),
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseType {
	case DBTypeSQLite, DBTypePostgres:
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.DatabaseType)
	}
	switch c.BlobBackend {
	case BlobBackendDisk, BlobBackendBadger:
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.JwtSecret == "" {
		if !c.DevMode {
			return fmt.Errorf("JWT_SECRET is required outside dev mode")
		}
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvSlice(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
