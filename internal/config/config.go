package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// Driver selects the persistence backend: "sqlite" or "memory".
	Driver       string
	DatabasePath string

	JWTSecret          string
	AccessTokenMinutes int
	RefreshTokenDays   int
	EncryptKey         string
	LegacyEncryptKeys  []string

	CORSOrigins []string
	Debug       bool

	// SessionBuffer is the per-connection outbound queue size; a full queue
	// drops events (at-most-once delivery).
	SessionBuffer int
}

func Load() (*Config, error) {
	// Optional .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "chatd"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		Driver:       getEnv("DB_DRIVER", "sqlite"),
		DatabasePath: getEnv("DB_PATH", "chatd.db"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		RefreshTokenDays:   getEnvAsInt("REFRESH_TOKEN_EXPIRE_DAYS", 30),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),

		Debug:         getEnvAsBool("DEBUG", true),
		SessionBuffer: getEnvAsInt("SESSION_BUFFER", 64),
	}

	if legacy := getEnv("LEGACY_ENCRYPTION_KEYS", ""); legacy != "" {
		for _, k := range strings.Split(legacy, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.LegacyEncryptKeys = append(cfg.LegacyEncryptKeys, k)
			}
		}
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch cfg.Driver {
	case "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
