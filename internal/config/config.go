package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	Identity  IdentityConfig
	Shifts    ShiftsConfig
	Telemetry TelemetryConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	URL      string
	MaxConns int32
	Timeout  time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecureToken parses id_token claims without signature checks (integration mode only).
	AllowInsecureToken bool
}

type IdentityConfig struct {
	// TerminalKey names this dashboard instance; the cached session is stored under it.
	TerminalKey string
	// AdminEmails is the allow-list of identities promoted to admin on login.
	AdminEmails []string
	// EnforceAdminAllowList re-applies the promotion on every login, overriding demotions.
	EnforceAdminAllowList bool
	SessionTTL            time.Duration
}

type ShiftsConfig struct {
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	AdminEmail     string
	// WarningThresholdCents: |difference| above this flags the close as a warning.
	WarningThresholdCents int64
}

type TelemetryConfig struct {
	FlushInterval time.Duration
	MaxQueue      int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("POSTGRES_MAX_CONNS", 10)
	viper.SetDefault("POSTGRES_TIMEOUT", 10)
	viper.SetDefault("MONGODB_DATABASE", "smartbar")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("IDENTITY_TERMINAL_KEY", "terminal-1")
	viper.SetDefault("IDENTITY_ENFORCE_ADMIN_ALLOWLIST", true)
	viper.SetDefault("IDENTITY_SESSION_TTL_MINUTES", 10080)
	viper.SetDefault("SHIFTS_WEBHOOK_TIMEOUT_SECONDS", 5)
	viper.SetDefault("SHIFTS_WARNING_THRESHOLD_CENTS", 100)
	viper.SetDefault("TELEMETRY_FLUSH_INTERVAL_SECONDS", 5)
	viper.SetDefault("TELEMETRY_MAX_QUEUE", 1000)
	viper.SetDefault("MINIO_BUCKET", "smartbar-reports")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
			Timeout:  time.Duration(viper.GetInt("POSTGRES_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:                viper.GetString("KEYCLOAK_URL"),
			Realm:              viper.GetString("KEYCLOAK_REALM"),
			ClientID:           viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:       viper.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecureToken: viper.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		Identity: IdentityConfig{
			TerminalKey:           viper.GetString("IDENTITY_TERMINAL_KEY"),
			AdminEmails:           splitList(viper.GetString("IDENTITY_ADMIN_EMAILS")),
			EnforceAdminAllowList: viper.GetBool("IDENTITY_ENFORCE_ADMIN_ALLOWLIST"),
			SessionTTL:            time.Duration(viper.GetInt("IDENTITY_SESSION_TTL_MINUTES")) * time.Minute,
		},
		Shifts: ShiftsConfig{
			WebhookURL:            viper.GetString("SHIFTS_WEBHOOK_URL"),
			WebhookSecret:         os.Getenv("SHIFTS_WEBHOOK_SECRET"),
			WebhookTimeout:        time.Duration(viper.GetInt("SHIFTS_WEBHOOK_TIMEOUT_SECONDS")) * time.Second,
			AdminEmail:            viper.GetString("SHIFTS_ADMIN_EMAIL"),
			WarningThresholdCents: viper.GetInt64("SHIFTS_WARNING_THRESHOLD_CENTS"),
		},
		Telemetry: TelemetryConfig{
			FlushInterval: time.Duration(viper.GetInt("TELEMETRY_FLUSH_INTERVAL_SECONDS")) * time.Second,
			MaxQueue:      viper.GetInt("TELEMETRY_MAX_QUEUE"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Postgres.URL == "" && cfg.MongoDB.URI == "" {
		log.Println("WARNING: neither DATABASE_URL nor MONGODB_URI is set; state is kept in memory only")
	}
	if cfg.Shifts.WebhookURL != "" && cfg.Shifts.WebhookSecret == "" {
		log.Println("WARNING: SHIFTS_WEBHOOK_URL is set without SHIFTS_WEBHOOK_SECRET; closing reports are sent unsigned")
	}

	return cfg, nil
}

// splitList parses a comma separated env value, trimming blanks and lower-casing entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
