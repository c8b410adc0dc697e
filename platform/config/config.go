// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StorageConfig selects the repository implementation.
type StorageConfig interface {
	GetStorageDriver() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings for delayed follow-ups.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	IsSchedulerEnabled() bool
}

// FollowUpConfig provides settings for the follow-up job processor.
type FollowUpConfig interface {
	GetFollowUpSweepInterval() time.Duration
	GetFollowUpBatchSize() int
	GetFollowUpMaxAttempts() int
	GetFollowUpRetryBackoff() time.Duration
	GetFollowUpClaimLease() time.Duration
}

// WhatsAppConfig provides settings for the WhatsApp Cloud API.
type WhatsAppConfig interface {
	GetWhatsAppGraphURL() string
	GetWhatsAppVerifyToken() string
	GetWhatsAppAppSecret() string
}

// ClassifierConfig provides settings for the Gemini classifier and responder.
type ClassifierConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	IsClassifierEnabled() bool
	IsAutoReplyEnabled() bool
}

// VoiceConfig provides settings for spoken AI replies to hot leads.
type VoiceConfig interface {
	GetGeminiTTSModel() string
	GetGeminiVoice() string
	GetFFmpegPath() string
	IsVoiceNotesEnabled() bool
}

// EmailConfig provides SMTP settings for the email follow-up channel.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// CredentialsConfig provides the key used to seal stored channel credentials.
type CredentialsConfig interface {
	GetCredentialsKey() []byte
}

// FactsConfig provides settings for publishing audit facts to a broker.
type FactsConfig interface {
	GetFactsAMQPURL() string
	GetFactsExchange() string
	IsFactsPublishingEnabled() bool
}

// MetricsConfig provides Prometheus settings.
type MetricsConfig interface {
	GetMetricsNamespace() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	StorageDriver   string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	FollowUpSweepInterval time.Duration
	FollowUpBatchSize     int
	FollowUpMaxAttempts   int
	FollowUpRetryBackoff  time.Duration
	FollowUpClaimLease    time.Duration

	WhatsAppGraphURL    string
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string

	GeminiAPIKey     string
	GeminiModel      string
	AutoReplyEnabled bool

	GeminiTTSModel    string
	GeminiVoice       string
	FFmpegPath        string
	VoiceNotesEnabled bool

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	CredentialsKey []byte

	FactsAMQPURL  string
	FactsExchange string

	MetricsNamespace string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// StorageConfig implementation
func (c *Config) GetStorageDriver() string { return c.StorageDriver }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) IsSchedulerEnabled() bool  { return c.RedisURL != "" }

// FollowUpConfig implementation
func (c *Config) GetFollowUpSweepInterval() time.Duration { return c.FollowUpSweepInterval }
func (c *Config) GetFollowUpBatchSize() int               { return c.FollowUpBatchSize }
func (c *Config) GetFollowUpMaxAttempts() int             { return c.FollowUpMaxAttempts }
func (c *Config) GetFollowUpRetryBackoff() time.Duration  { return c.FollowUpRetryBackoff }
func (c *Config) GetFollowUpClaimLease() time.Duration    { return c.FollowUpClaimLease }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppGraphURL() string    { return c.WhatsAppGraphURL }
func (c *Config) GetWhatsAppVerifyToken() string { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppAppSecret() string   { return c.WhatsAppAppSecret }

// ClassifierConfig implementation
func (c *Config) GetGeminiAPIKey() string   { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string    { return c.GeminiModel }
func (c *Config) IsClassifierEnabled() bool { return c.GeminiAPIKey != "" }
func (c *Config) IsAutoReplyEnabled() bool  { return c.AutoReplyEnabled }

// VoiceConfig implementation
func (c *Config) GetGeminiTTSModel() string { return c.GeminiTTSModel }
func (c *Config) GetGeminiVoice() string    { return c.GeminiVoice }
func (c *Config) GetFFmpegPath() string     { return c.FFmpegPath }

// IsVoiceNotesEnabled needs the classifier as well: voice notes speak its replies.
func (c *Config) IsVoiceNotesEnabled() bool {
	return c.VoiceNotesEnabled && c.IsClassifierEnabled() && c.AutoReplyEnabled
}

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != ""
}

// CredentialsConfig implementation
func (c *Config) GetCredentialsKey() []byte { return c.CredentialsKey }

// FactsConfig implementation
func (c *Config) GetFactsAMQPURL() string        { return c.FactsAMQPURL }
func (c *Config) GetFactsExchange() string       { return c.FactsExchange }
func (c *Config) IsFactsPublishingEnabled() bool { return c.FactsAMQPURL != "" }

// MetricsConfig implementation
func (c *Config) GetMetricsNamespace() string { return c.MetricsNamespace }

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool { return strings.EqualFold(c.Env, "development") }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),

		FollowUpSweepInterval: mustDuration(getEnv("FOLLOWUP_SWEEP_INTERVAL", "5m")),
		FollowUpBatchSize:     mustInt(getEnv("FOLLOWUP_BATCH_SIZE", "50")),
		FollowUpMaxAttempts:   mustInt(getEnv("FOLLOWUP_MAX_ATTEMPTS", "3")),
		FollowUpRetryBackoff:  mustDuration(getEnv("FOLLOWUP_RETRY_BACKOFF", "15m")),
		FollowUpClaimLease:    mustDuration(getEnv("FOLLOWUP_CLAIM_LEASE", "10m")),

		WhatsAppGraphURL:    strings.TrimRight(getEnv("WHATSAPP_GRAPH_URL", "https://graph.facebook.com/v20.0"), "/"),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AutoReplyEnabled: strings.EqualFold(getEnv("AUTO_REPLY_ENABLED", "true"), "true"),

		GeminiTTSModel:    getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiVoice:       getEnv("GEMINI_VOICE", "Kore"),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		VoiceNotesEnabled: strings.EqualFold(getEnv("VOICE_NOTES_ENABLED", "false"), "true"),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Leadflow"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		FactsAMQPURL:  getEnv("FACTS_AMQP_URL", ""),
		FactsExchange: getEnv("FACTS_EXCHANGE", "leadflow.facts"),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "leadflow"),
	}

	if raw := getEnv("CREDENTIALS_KEY", ""); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("CREDENTIALS_KEY must be 64 hex characters")
		}
		cfg.CredentialsKey = key
	}

	switch cfg.StorageDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.FollowUpSweepInterval <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.FollowUpBatchSize <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_BATCH_SIZE must be positive")
	}
	if cfg.FollowUpMaxAttempts <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_MAX_ATTEMPTS must be positive")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// ValidateAPI checks settings only the HTTP API needs.
func (c *Config) ValidateAPI() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
