package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultTokenTTL matches the lifetime of login tokens issued by the API.
	DefaultTokenTTL = 2 * time.Hour

	// DefaultMaxImageBytes bounds scene image uploads.
	DefaultMaxImageBytes = 5 << 20
)

// Config holds all runtime configuration for questlog.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schema   SchemaConfig   `mapstructure:"schema"`
}

type DatabaseConfig struct {
	// DSN selects the backend by scheme: memory://, sqlite://path or postgres://...
	DSN string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	MaxBodyBytes  int64  `mapstructure:"max_body_bytes"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// String masks the signing secret.
func (c AuthConfig) String() string {
	secret := "***"
	if c.JWTSecret == "" {
		secret = ""
	}
	return fmt.Sprintf("AuthConfig{JWTSecret:%s, TokenTTL:%s}", secret, c.TokenTTL)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SchemaConfig struct {
	// Path overrides the embedded entity schema when set.
	Path string `mapstructure:"path"`
}

// Load reads configuration from an optional file, the environment and
// defaults. An explicit path must exist; otherwise questlog.yaml is looked up
// in the working directory and skipped when absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.dsn", "sqlite://questlog.db")

	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.max_image_bytes", DefaultMaxImageBytes)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", DefaultTokenTTL)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("schema.path", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("questlog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QUESTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required fields are set and consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be greater than 0")
	}
	if c.HTTP.MaxImageBytes <= 0 {
		return fmt.Errorf("http.max_image_bytes must be greater than 0")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be greater than 0")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	return nil
}

// RequireAuth reports an error when the token signing secret is missing.
// Only commands that issue or verify tokens call it.
func (c *Config) RequireAuth() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret must be set (QUESTLOG_AUTH_JWT_SECRET)")
	}
	return nil
}
