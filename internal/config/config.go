package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds gateway configuration.
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Identity provider (Supabase/GoTrue style)
	IdentityBaseURL   string
	IdentityAnonKey   string
	IdentityJWTSecret string
	IdentityJWKSURL   string

	// Session handling
	SessionCookieName   string
	SessionCookieSecure bool
	SessionTTL          time.Duration
	InitTimeout         time.Duration

	// Platform backend + external collaborators
	PlatformAPIBaseURL string
	PaymentPublicKey   string
	VideoBaseURL       string
	VideoAPIKey        string

	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	NotifyQueueURL      string
	NotifyJobsTable     string
	ComplianceBucket    string
	UseMemoryQueue      bool
	WorkerCount         int

	// Email
	EmailProvider     string
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Abuse controls
	LoginRatePerMinute int
	LoginBurst         int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		IdentityBaseURL:   getEnv("IDENTITY_BASE_URL", ""),
		IdentityAnonKey:   getEnv("IDENTITY_ANON_KEY", ""),
		IdentityJWTSecret: getEnv("IDENTITY_JWT_SECRET", ""),
		IdentityJWKSURL:   getEnv("IDENTITY_JWKS_URL", ""),

		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "sb-access-token"),
		SessionCookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", true),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		InitTimeout:         getEnvAsDuration("SESSION_INIT_TIMEOUT", 10*time.Second),

		PlatformAPIBaseURL: getEnv("PLATFORM_API_BASE_URL", ""),
		PaymentPublicKey:   getEnv("PAYMENT_PUBLIC_KEY", ""),
		VideoBaseURL:       getEnv("VIDEO_BASE_URL", ""),
		VideoAPIKey:        getEnv("VIDEO_API_KEY", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		NotifyQueueURL:      getEnv("NOTIFY_QUEUE_URL", ""),
		NotifyJobsTable:     getEnv("NOTIFY_JOBS_TABLE", "notify_jobs"),
		ComplianceBucket:    getEnv("COMPLIANCE_BUCKET", ""),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "CareLink"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CareLink"),

		LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		LoginBurst:         getEnvAsInt("LOGIN_BURST", 5),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
