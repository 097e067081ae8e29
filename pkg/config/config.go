package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the configuration of every subsystem. Loaded once from
// the environment at startup and passed down explicitly; no package reads the
// environment on its own.
type Config struct {
	// MetricsAddr is the listen address of the prometheus scrape endpoint.
	MetricsAddr string

	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Invitation InvitationConfig
	OAuth      OAuthClientConfig
	Janitor    JanitorConfig
	Notifx     NotifxConfig
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis connection used by collaborator caches.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig configures credential handling.
type AuthConfig struct {
	BcryptCost       int
	LockoutThreshold int
}

// InvitationConfig configures the invitation lifecycle.
type InvitationConfig struct {
	DefaultValidity time.Duration
}

// OAuthClientConfig configures derived OAuth2 client defaults.
type OAuthClientConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
	RequirePKCE     bool
	DescriptorTTL   time.Duration
}

// JanitorConfig configures the background maintenance sweeps.
type JanitorConfig struct {
	Concurrency             int
	TokenSweepInterval      time.Duration
	InvitationSweepInterval time.Duration
	AuditSweepInterval      time.Duration
	AuditRetention          time.Duration
}

// NotifxConfig configures outbound email.
type NotifxConfig struct {
	Provider      string
	FromAddress   string
	FromName      string
	AWSRegion     string
	InviteBaseURL string
}

// Load builds a Config from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_URL", "postgres://localhost:5432/identra?sslmode=disable"),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			BcryptCost:       getEnvInt("AUTH_BCRYPT_COST", 12),
			LockoutThreshold: getEnvInt("AUTH_LOCKOUT_THRESHOLD", 5),
		},
		Invitation: InvitationConfig{
			DefaultValidity: getEnvDuration("INVITATION_DEFAULT_VALIDITY", 7*24*time.Hour),
		},
		OAuth: OAuthClientConfig{
			AccessTokenTTL:  getEnvDuration("OAUTH_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getEnvDuration("OAUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
			AuthCodeTTL:     getEnvDuration("OAUTH_AUTH_CODE_TTL", 10*time.Minute),
			RequirePKCE:     getEnvBool("OAUTH_REQUIRE_PKCE", false),
			DescriptorTTL:   getEnvDuration("OAUTH_DESCRIPTOR_CACHE_TTL", 5*time.Minute),
		},
		Janitor: JanitorConfig{
			Concurrency:             getEnvInt("JANITOR_CONCURRENCY", 2),
			TokenSweepInterval:      getEnvDuration("JANITOR_TOKEN_SWEEP_INTERVAL", time.Hour),
			InvitationSweepInterval: getEnvDuration("JANITOR_INVITATION_SWEEP_INTERVAL", time.Hour),
			AuditSweepInterval:      getEnvDuration("JANITOR_AUDIT_SWEEP_INTERVAL", 24*time.Hour),
			AuditRetention:          getEnvDuration("JANITOR_AUDIT_RETENTION", 90*24*time.Hour),
		},
		Notifx: NotifxConfig{
			Provider:      getEnv("NOTIFX_PROVIDER", "console"),
			FromAddress:   getEnv("NOTIFX_FROM_ADDRESS", "noreply@identra.io"),
			FromName:      getEnv("NOTIFX_FROM_NAME", "Identra"),
			AWSRegion:     getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
			InviteBaseURL: getEnv("NOTIFX_INVITE_BASE_URL", "https://app.identra.io/invitations/accept"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
