package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host string
		Port string
	}

	Admin struct {
		// bcrypt hash of the admin password
		PasswordHash string
	}

	Roulette struct {
		SessionDuration time.Duration
		PrivateDuration time.Duration
		ExtendDuration  time.Duration
		SweepInterval   time.Duration
		TTLBuffer       time.Duration
	}
}

func New() *Config {
	// best effort; real deployments set env vars directly
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "chat_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "3001")

	// Admin
	cfg.Admin.PasswordHash = getEnvDefault("ADMIN_PASSWORD_HASH", "")

	// Roulette timings, all in seconds
	cfg.Roulette.SessionDuration = getEnvSeconds("ROULETTE_DURATION", 180)
	cfg.Roulette.PrivateDuration = getEnvSeconds("PRIVATE_CHAT_DURATION", 300)
	cfg.Roulette.ExtendDuration = getEnvSeconds("EXTEND_DURATION", 300)
	cfg.Roulette.SweepInterval = getEnvSeconds("QUEUE_SWEEP_INTERVAL", 2)
	cfg.Roulette.TTLBuffer = getEnvSeconds("SESSION_TTL_BUFFER", 60)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvSeconds(k string, def int) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
