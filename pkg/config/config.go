package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/cids/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Discovery configuration
	Discovery DiscoveryConfig

	// Token configuration
	Tokens TokenConfig

	// Policy configuration
	Policy PolicyConfig

	// Identity provider configuration
	OIDC OIDCConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings for the registry store
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings for the token revocation index
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// DiscoveryConfig holds capability discovery settings
type DiscoveryConfig struct {
	HealthTimeout     time.Duration
	FetchTimeout      time.Duration
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	CacheTTL          time.Duration
	CacheSize         int

	// CronSchedule re-runs discovery for every registered app; empty
	// disables the job.
	CronSchedule string
}

// TokenConfig holds token issuance settings
type TokenConfig struct {
	Issuer         string
	Audience       string
	SigningKeyPath string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

// PolicyConfig holds role-mapping and token-template file locations
type PolicyConfig struct {
	RoleMappingPath   string
	TokenTemplatePath string
	WatchFiles        bool
}

// OIDCConfig holds identity-provider settings. An empty issuer URL runs the
// service with the static development provider instead.
type OIDCConfig struct {
	IssuerURL  string
	ClientID   string
	GroupClaim string
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	LogDir   string
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CIDS_HOST", "0.0.0.0"),
			Port:            getEnv("CIDS_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CIDS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CIDS_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CIDS_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CIDS_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CIDS_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("CIDS_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("CIDS_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("CIDS_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("CIDS_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("CIDS_REDIS_URL", ""),
			Password: getEnv("CIDS_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CIDS_REDIS_DB", 0),
			PoolSize: getEnvInt("CIDS_REDIS_POOL_SIZE", 10),
		},
		Discovery: DiscoveryConfig{
			HealthTimeout:     getEnvDuration("CIDS_DISCOVERY_HEALTH_TIMEOUT", 5*time.Second),
			FetchTimeout:      getEnvDuration("CIDS_DISCOVERY_FETCH_TIMEOUT", 30*time.Second),
			MaxAttempts:       getEnvInt("CIDS_DISCOVERY_MAX_ATTEMPTS", 3),
			InitialDelay:      getEnvDuration("CIDS_DISCOVERY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("CIDS_DISCOVERY_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: getEnvFloat("CIDS_DISCOVERY_BACKOFF_MULTIPLIER", 2.0),
			CacheTTL:          getEnvDuration("CIDS_DISCOVERY_CACHE_TTL", 60*time.Minute),
			CacheSize:         getEnvInt("CIDS_DISCOVERY_CACHE_SIZE", 256),
			CronSchedule:      getEnv("CIDS_DISCOVERY_CRON", ""),
		},
		Tokens: TokenConfig{
			Issuer:         getEnv("CIDS_TOKEN_ISSUER", "cids"),
			Audience:       getEnv("CIDS_TOKEN_AUDIENCE", "cids-clients"),
			SigningKeyPath: getEnv("CIDS_SIGNING_KEY_PATH", ""),
			AccessTTL:      getEnvDuration("CIDS_ACCESS_TOKEN_TTL", 10*time.Minute),
			RefreshTTL:     getEnvDuration("CIDS_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Policy: PolicyConfig{
			RoleMappingPath:   getEnv("CIDS_ROLE_MAPPING_PATH", ""),
			TokenTemplatePath: getEnv("CIDS_TOKEN_TEMPLATE_PATH", ""),
			WatchFiles:        getEnvBool("CIDS_WATCH_POLICY_FILES", true),
		},
		OIDC: OIDCConfig{
			IssuerURL:  getEnv("CIDS_OIDC_ISSUER_URL", ""),
			ClientID:   getEnv("CIDS_OIDC_CLIENT_ID", ""),
			GroupClaim: getEnv("CIDS_OIDC_GROUP_CLAIM", "groups"),
		},
		Audit: AuditConfig{
			LogDir:   getEnv("CIDS_AUDIT_LOG_DIR", ""),
			MaxSize:  getEnvInt64("CIDS_AUDIT_MAX_SIZE", 100*1024*1024),
			MaxFiles: getEnvInt("CIDS_AUDIT_MAX_FILES", 10),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("CIDS_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CIDS_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Tokens.SigningKeyPath == "" {
		return fmt.Errorf("token signing key path is required")
	}
	if c.Tokens.Issuer == "" || c.Tokens.Audience == "" {
		return fmt.Errorf("token issuer and audience are required")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Tokens.AccessTTL >= c.Tokens.RefreshTTL {
		return fmt.Errorf("access token lifetime must be shorter than refresh token lifetime")
	}

	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an issuer is configured")
	}

	if c.Discovery.MaxAttempts < 1 {
		return fmt.Errorf("discovery max attempts must be at least 1")
	}
	if c.Discovery.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("discovery backoff multiplier must exceed 1.0")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
