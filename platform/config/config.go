// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AuthConfig provides settings for verifying identity-provider session tokens.
type AuthConfig interface {
	GetJWKSURL() string
	GetJWTIssuer() string
}

// RedisConfig provides the shared Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq queue and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetEmailSweepInterval() time.Duration
	GetEmailStuckAfter() time.Duration
}

// DeliveryConfig provides settings for outbound customer email.
type DeliveryConfig interface {
	GetEmailEnabled() bool
	GetEmailProvider() string
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	SMTPConfig
}

// SMTPConfig provides direct SMTP delivery settings.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
}

// AIConfig provides settings for the text-generation collaborator.
type AIConfig interface {
	GetAIProvider() string
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetAITimeout() time.Duration
}

// IdentityWebhookConfig provides the identity provider's webhook signing secret.
type IdentityWebhookConfig interface {
	GetClerkWebhookSecret() string
}

// LeadAdsConfig provides settings for the social lead-ads integration.
type LeadAdsConfig interface {
	GetFacebookAppSecret() string
	GetFacebookVerifyToken() string
	GetFacebookGraphVersion() string
	GetFacebookGraphBaseURL() string
}

// IntakeConfig provides settings for inquiry intake and deduplication.
type IntakeConfig interface {
	GetFormDedupPolicy() string
	GetFormDedupLock() bool
	GetDefaultPhoneRegion() string
}

// SpamPolicyConfig points at an optional spam policy override file.
type SpamPolicyConfig interface {
	GetSpamPolicyFile() string
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketInboundAttachments() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                           string
	HTTPAddr                      string
	DatabaseURL                   string
	CORSAllowAll                  bool
	CORSOrigins                   []string
	CORSAllowCreds                bool
	JWKSURL                       string
	JWTIssuer                     string
	RedisURL                      string
	RedisTLSInsecure              bool
	AsynqQueueName                string
	AsynqConcurrency              int
	EmailSweepInterval            time.Duration
	EmailStuckAfter               time.Duration
	EmailEnabled                  bool
	EmailProvider                 string
	BrevoAPIKey                   string
	EmailFromName                 string
	EmailFromAddress              string
	SMTPHost                      string
	SMTPPort                      int
	SMTPUsername                  string
	SMTPPassword                  string
	AIProvider                    string
	MoonshotAPIKey                string
	MoonshotModel                 string
	GeminiAPIKey                  string
	GeminiModel                   string
	AITimeout                     time.Duration
	ClerkWebhookSecret            string
	FacebookAppSecret             string
	FacebookVerifyToken           string
	FacebookGraphVersion          string
	FacebookGraphBaseURL          string
	FormDedupPolicy               string
	FormDedupLock                 bool
	DefaultPhoneRegion            string
	SpamPolicyFile                string
	MinIOEndpoint                 string
	MinIOAccessKey                string
	MinIOSecretKey                string
	MinIOUseSSL                   bool
	MinIOMaxFileSize              int64
	MinioBucketInboundAttachments string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AuthConfig implementation
func (c *Config) GetJWKSURL() string   { return c.JWKSURL }
func (c *Config) GetJWTIssuer() string { return c.JWTIssuer }

// RedisConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string              { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int               { return c.AsynqConcurrency }
func (c *Config) GetEmailSweepInterval() time.Duration   { return c.EmailSweepInterval }
func (c *Config) GetEmailStuckAfter() time.Duration      { return c.EmailStuckAfter }

// DeliveryConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }

// AIConfig implementation
func (c *Config) GetAIProvider() string        { return c.AIProvider }
func (c *Config) GetMoonshotAPIKey() string    { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string     { return c.MoonshotModel }
func (c *Config) GetGeminiAPIKey() string      { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string       { return c.GeminiModel }
func (c *Config) GetAITimeout() time.Duration { return c.AITimeout }

// IdentityWebhookConfig implementation
func (c *Config) GetClerkWebhookSecret() string { return c.ClerkWebhookSecret }

// LeadAdsConfig implementation
func (c *Config) GetFacebookAppSecret() string    { return c.FacebookAppSecret }
func (c *Config) GetFacebookVerifyToken() string  { return c.FacebookVerifyToken }
func (c *Config) GetFacebookGraphVersion() string { return c.FacebookGraphVersion }
func (c *Config) GetFacebookGraphBaseURL() string { return c.FacebookGraphBaseURL }

// IntakeConfig implementation
func (c *Config) GetFormDedupPolicy() string    { return c.FormDedupPolicy }
func (c *Config) GetFormDedupLock() bool        { return c.FormDedupLock }
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// SpamPolicyConfig implementation
func (c *Config) GetSpamPolicyFile() string { return c.SpamPolicyFile }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketInboundAttachments() string {
	return c.MinioBucketInboundAttachments
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// IsDevelopment reports whether the app runs with development defaults.
func (c *Config) IsDevelopment() bool { return strings.EqualFold(c.Env, "development") }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                           getEnv("APP_ENV", "development"),
		HTTPAddr:                      getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                   getEnv("DATABASE_URL", ""),
		CORSAllowAll:                  corsAllowAll,
		CORSOrigins:                   corsOrigins,
		CORSAllowCreds:                strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		JWKSURL:                       getEnv("CLERK_JWKS_URL", ""),
		JWTIssuer:                     getEnv("CLERK_ISSUER", ""),
		RedisURL:                      getEnv("REDIS_URL", ""),
		RedisTLSInsecure:              strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:                getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:              mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailSweepInterval:            mustDuration(getEnv("EMAIL_SWEEP_INTERVAL", "5m")),
		EmailStuckAfter:               mustDuration(getEnv("EMAIL_STUCK_AFTER", "15m")),
		EmailEnabled:                  strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		EmailProvider:                 strings.ToLower(getEnv("EMAIL_PROVIDER", "brevo")),
		BrevoAPIKey:                   getEnv("BREVO_API_KEY", ""),
		EmailFromName:                 getEnv("EMAIL_FROM_NAME", "Dealerdesk"),
		EmailFromAddress:              getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:                      getEnv("SMTP_HOST", ""),
		SMTPPort:                      mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                  getEnv("SMTP_PASSWORD", ""),
		AIProvider:                    strings.ToLower(getEnv("AI_PROVIDER", "moonshot")),
		MoonshotAPIKey:                getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:                 getEnv("MOONSHOT_MODEL", ""),
		GeminiAPIKey:                  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:                   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AITimeout:                     mustDuration(getEnv("AI_TIMEOUT", "30s")),
		ClerkWebhookSecret:            getEnv("CLERK_WEBHOOK_SECRET", ""),
		FacebookAppSecret:             getEnv("FACEBOOK_APP_SECRET", ""),
		FacebookVerifyToken:           getEnv("FACEBOOK_VERIFY_TOKEN", ""),
		FacebookGraphVersion:          getEnv("FACEBOOK_GRAPH_VERSION", "v18.0"),
		FacebookGraphBaseURL:          getEnv("FACEBOOK_GRAPH_BASE_URL", "https://graph.facebook.com"),
		FormDedupPolicy:               strings.ToLower(getEnv("FORM_DEDUP_POLICY", "resubmit")),
		FormDedupLock:                 strings.EqualFold(getEnv("FORM_DEDUP_LOCK", "true"), "true"),
		DefaultPhoneRegion:            strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "NO")),
		SpamPolicyFile:                getEnv("SPAM_POLICY_FILE", ""),
		MinIOEndpoint:                 getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:                getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:                getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                   strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:              mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "26214400")),
		MinioBucketInboundAttachments: getEnv("MINIO_BUCKET_INBOUND_ATTACHMENTS", "inbound-email-attachments"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ClerkWebhookSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("CLERK_WEBHOOK_SECRET is required outside development")
	}
	if c.EmailEnabled {
		if c.EmailFromAddress == "" {
			return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
		}
		switch c.EmailProvider {
		case "brevo":
			if c.BrevoAPIKey == "" {
				return fmt.Errorf("BREVO_API_KEY is required when EMAIL_PROVIDER is brevo")
			}
		case "smtp":
			if c.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
			}
		default:
			return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.EmailProvider)
		}
	}
	switch c.FormDedupPolicy {
	case "resubmit", "append":
	default:
		return fmt.Errorf("unsupported FORM_DEDUP_POLICY %q", c.FormDedupPolicy)
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
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

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
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
