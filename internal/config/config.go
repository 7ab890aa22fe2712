// Package config loads server configuration from the environment,
// adapted from kari/api/internal/config/config.go's getEnv fallback
// pattern. Unlike the teacher, this loader actually calls godotenv.Load
// so a .env file in the working directory is picked up in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings the server binary reads from the
// environment.
type Config struct {
	Environment     string
	Port            int
	MaxBodySizeMiB  int
	WsIdleTimeout   int
	AllowedOrigins  []string
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// Load reads .env (if present) then the process environment, applying
// the same sensible-fallback shape as the teacher's Load.
func Load() *Config {
	// godotenv.Load silently no-ops if no .env file exists, same as
	// production expects — only local development carries one.
	_ = godotenv.Load()

	return &Config{
		Environment:     getEnv("IGNIS_ENV", "production"),
		Port:            getEnvInt("IGNIS_PORT", 6000),
		MaxBodySizeMiB:  getEnvInt("IGNIS_MAX_BODY_MIB", 1),
		WsIdleTimeout:   getEnvInt("IGNIS_WS_IDLE_TIMEOUT_SEC", 15),
		AllowedOrigins:  getEnvList("IGNIS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:    getEnvFloat("IGNIS_RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getEnvInt("IGNIS_RATE_LIMIT_BURST", 40),
		ShutdownTimeout: time.Duration(getEnvInt("IGNIS_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
