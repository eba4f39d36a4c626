package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	JWTSecret      []byte
	Port           string
	AllowedOrigins string
	UploadDir      string
	SiteURL        string
	FrameRateLimit int
}

func LoadConfig() (*Config, error) {
	// Load .env if present; real env vars still win.
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=relay port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      []byte(os.Getenv("JWT_KEY")),
		Port:           getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads/chat"),
		SiteURL:        getEnv("SITE_URL", "/"),
		FrameRateLimit: getEnvInt("FRAME_RATE_LIMIT", 40),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
