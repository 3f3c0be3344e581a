// Package config provides configuration loading for the SpeakLexi API.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Environment    string        `mapstructure:"environment"` // dev, staging, prod
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// form used by the migrator.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

// MailConfig holds outbound mail configuration. With an empty SMTPHost mail
// is written to the log instead of sent.
type MailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	FrontendURL  string `mapstructure:"frontend_url"`
	ResetPath    string `mapstructure:"reset_path"`
	SupportEmail string `mapstructure:"support_email"`
}

// AccountsConfig holds account lifecycle policy.
type AccountsConfig struct {
	VerificationTTL   time.Duration `mapstructure:"verification_ttl"`
	RecoveryTTL       time.Duration `mapstructure:"recovery_ttl"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
}

// StorageConfig holds multimedia storage configuration.
type StorageConfig struct {
	Root      string `mapstructure:"root"`
	PublicURL string `mapstructure:"public_url"`
}

// RateLimitConfig holds limits for the abuse-prone auth endpoints.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	BurstSize         int  `mapstructure:"burst_size"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/speaklexi")

	// SPEAKLEXI_DATABASE_HOST overrides database.host, and so on.
	v.SetEnvPrefix("SPEAKLEXI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Secrets are commonly set only through the environment; AutomaticEnv
	// does not see keys without a default, so bind them explicitly.
	v.BindEnv("auth.jwt_secret", "SPEAKLEXI_AUTH_JWT_SECRET")
	v.BindEnv("mail.password", "SPEAKLEXI_MAIL_PASSWORD")
	v.BindEnv("database.password", "SPEAKLEXI_DATABASE_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Environment == "prod" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in prod")
	}
	if c.Accounts.VerificationTTL <= 0 || c.Accounts.RecoveryTTL <= 0 || c.Accounts.GracePeriod <= 0 {
		return fmt.Errorf("accounts ttl and grace period must be positive")
	}
	if c.Accounts.MinPasswordLength < 1 {
		return fmt.Errorf("accounts.min_password_length must be at least 1")
	}
	return nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "speaklexi")
	v.SetDefault("database.password", "speaklexi")
	v.SetDefault("database.database", "speaklexi")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.jwt_issuer", "speaklexi")
	v.SetDefault("auth.jwt_expiry", "24h")

	// Mail defaults
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.from", "SpeakLexi <no-reply@speaklexi.local>")
	v.SetDefault("mail.frontend_url", "http://localhost:3000")
	v.SetDefault("mail.reset_path", "/restablecer-contrasena")

	// Account policy defaults
	v.SetDefault("accounts.verification_ttl", "10m")
	v.SetDefault("accounts.recovery_ttl", "1h")
	v.SetDefault("accounts.grace_period", "720h") // 30 days
	v.SetDefault("accounts.min_password_length", 8)
	v.SetDefault("accounts.bcrypt_cost", 10)

	// Storage defaults
	v.SetDefault("storage.root", "uploads/multimedia")
	v.SetDefault("storage.public_url", "/uploads/multimedia")

	// Rate limit defaults
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 5)
	v.SetDefault("ratelimit.burst_size", 2)
}
