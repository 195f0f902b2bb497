package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	JWTSecret  string
	TokenTTL   time.Duration
	CORSOrigin string
	// Checkpoint store backend. Redis is preferred when both are set;
	// with neither, state lives in process memory only.
	RedisURL    string
	DatabaseURL string
	// Transport backend: "redis" fans updates out across instances,
	// anything else keeps the in-process WebSocket hub only.
	Transport string
}

func Load() Config {
	return Config{
		Addr:        getenv("COLLAB_ADDR", ":8790"),
		JWTSecret:   getenv("COLLAB_JWT_SECRET", "collab-dev-secret"),
		TokenTTL:    time.Duration(getenvInt("COLLAB_TOKEN_TTL_SECONDS", 86400)) * time.Second,
		CORSOrigin:  getenv("COLLAB_CORS_ORIGIN", "*"),
		RedisURL:    getenv("REDIS_URL", ""),
		DatabaseURL: getenv("DATABASE_URL", ""),
		Transport:   getenv("COLLAB_TRANSPORT", "hub"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
