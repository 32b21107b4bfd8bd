package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// appConfig holds every environment-driven setting for the API server.
type appConfig struct {
	Env            string
	Addr           string
	DBURL          string
	JWTSecret      string
	TokenTTL       time.Duration
	AppURL         string
	AllowedOrigins []string

	RedisURL       string
	LeaderboardTTL time.Duration

	MetricsEnabled   bool
	AWSRegion        string
	MetricsNamespace string

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSender string

	OpenAIBaseURL string
	OpenAIKey     string
}

// loadConfig reads the environment (already populated from .env by main).
// DB_URL and JWT_SECRET are required; everything else has a default.
func loadConfig() (appConfig, error) {
	cfg := appConfig{
		Env:            getEnv("ENV", "development"),
		Addr:           getEnv("ADDR", ":3000"),
		DBURL:          os.Getenv("DB_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 24*time.Hour),
		AppURL:         strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		RedisURL:       os.Getenv("REDIS_URL"),
		LeaderboardTTL: getEnvDuration("LEADERBOARD_TTL", 60*time.Second),

		MetricsEnabled:   getEnvBool("METRICS_ENABLED", false),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "FedacnAPI"),

		SMTPHost:   os.Getenv("SMTP_HOST"),
		SMTPPort:   getEnvInt("SMTP_PORT", 587),
		SMTPUser:   os.Getenv("SMTP_USER"),
		SMTPPass:   os.Getenv("SMTP_PASS"),
		SMTPSender: getEnv("SMTP_SENDER", "no-reply@fedacn.app"),

		OpenAIBaseURL: strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	if cfg.DBURL == "" {
		return cfg, errors.New("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
