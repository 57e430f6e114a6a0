// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Config holds every setting the server reads at startup
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	RedisURL string

	AWSRegion  string
	S3Bucket   string
	CDNBaseURL string

	SESFromEmail string
	FrontendURL  string

	ElasticsearchURL string
	OTLPEndpoint     string

	CORSOrigins  []string
	RateLimitRPS float64

	OrphanSweepInterval time.Duration

	Google *oauth2.Config
}

// Load reads .env (if present) and the process environment.
// JWT_SECRET is the only required key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8787"),
		Environment:         getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
		DatabaseURL:         DatabaseURL(),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              getDurationOrDefault("JWT_TTL", 24*time.Hour),
		RedisURL:            os.Getenv("REDIS_URL"),
		AWSRegion:           getEnvOrDefault("AWS_REGION", "eu-west-3"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		CDNBaseURL:          os.Getenv("CDN_BASE_URL"),
		SESFromEmail:        getEnvOrDefault("SES_FROM_EMAIL", "noreply@lemarcheluxe.fr"),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		ElasticsearchURL:    os.Getenv("ELASTICSEARCH_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:         splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitRPS:        getFloatOrDefault("RATE_LIMIT_RPS", 20),
		OrphanSweepInterval: getDurationOrDefault("ORPHAN_SWEEP_INTERVAL", 15*time.Minute),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	if id, secret := os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"); id != "" && secret != "" {
		cfg.Google = &oauth2.Config{
			ClientID:     id,
			ClientSecret: secret,
			RedirectURL:  getEnvOrDefault("GOOGLE_REDIRECT_URL", "http://localhost:"+cfg.Port+"/api/v1/auth/google/callback"),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseURL returns DATABASE_URL or a DSN assembled from DB_* components
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvOrDefault("DB_HOST", "localhost"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "postgres"),
		getEnvOrDefault("DB_PASSWORD", ""),
		getEnvOrDefault("DB_NAME", "marcheluxe"),
		getEnvOrDefault("DB_SSLMODE", "disable"),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
