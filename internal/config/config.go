package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RBACConfig struct {
	PolicyFile string   `mapstructure:"policy_file"` // Path to the role policy file
	Admins     []string `mapstructure:"admins"`      // List of admin emails
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LetterConfig struct {
	// Folder for uploaded supporting letters. Defaults to the instance folder.
	Folder string `mapstructure:"folder"`
	// Maximum accepted letter size in bytes.
	MaxSize int64 `mapstructure:"max_size"`
}

type Config struct {
	// Secret key for signing tokens. Must be set in production.
	Secret string `mapstructure:"secret"`
	// TTL for actor tokens in minutes
	TokenTTL uint   `mapstructure:"token_ttl"`
	LogLevel string `mapstructure:"log_level"`

	ListenAddr string `mapstructure:"listen_addr"`

	// Comma separated list of allowed CIDR networks. Empty means allow all.
	AllowedNetworks string `mapstructure:"allowed_networks"`

	BaseURL string `mapstructure:"base_url"`

	RBAC RBACConfig `mapstructure:"rbac"`

	// Session record TTL in hours.
	SessionTTL uint `mapstructure:"session_ttl"`

	Letters LetterConfig `mapstructure:"letters"`

	Storage Storage `mapstructure:"storage"`

	SMTP SMTPConfig `mapstructure:"smtp"`
}

var Cfg *Config

// Check if running in Docker container by checking for the presence of /.dockerenv file
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

func getConfigPath() string {
	if runningInDocker() {
		return "/app/instance"
	}
	return "./instance"
}

// LoadConfig reads configuration from environment variables and an optional
// config file and returns a Config struct.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(getConfigPath())
	v.AddConfigPath(".")
	v.SetEnvPrefix("")

	if len(configFile) > 0 {
		for _, path := range configFile {
			v.SetConfigFile(path)
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetDefault("letters.folder", fmt.Sprintf("%s/letters", getConfigPath()))

	// Load configuration from environment variables
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	// Convert relative sqlite path to the instance folder
	if cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path == ":memory:" {
			// In-memory database, do nothing
		} else if !os.IsPathSeparator(cfg.Storage.SQLite.Path[0]) {
			cfg.Storage.SQLite.Path = fmt.Sprintf("%s/%s", getConfigPath(), cfg.Storage.SQLite.Path)
		}
	}

	// With neither backend configured, fall back to SQLite in the instance folder
	if cfg.Storage.SQLite == nil && !cfg.Storage.Memory {
		cfg.Storage.SQLite = &SQLiteStorage{
			Path: fmt.Sprintf("%s/issuance.db", getConfigPath()),
		}
	}

	// Warn if secret is missing - this is a critical security setting for production
	if cfg.Secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("SECRET configuration variable is required in production")
		} else {
			slog.Warn("Secret is not set. Do not use in production.")
		}
	}

	Cfg = &cfg
	return Cfg, nil
}

// SessionTTLDuration converts the configured session TTL hours.
func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Hour
}
