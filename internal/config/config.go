// Package config loads the server configuration from YAML with environment
// variable overrides for secrets.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OAuthConfig holds one provider's OAuth application credentials.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SMTPConfig holds the outbound mail relay settings. When Host is empty,
// notifications are logged instead of sent.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DatabasePath is the SQLite database file location.
	DatabasePath string `yaml:"database_path"`

	// SyncIntervalMinutes is the default sync cadence for connections that
	// don't set their own frequency.
	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`

	Google    OAuthConfig `yaml:"google"`
	Microsoft OAuthConfig `yaml:"microsoft"`
	SMTP      SMTPConfig  `yaml:"smtp"`

	// UserEmails maps user IDs to notification addresses. User IDs that are
	// themselves email addresses need no entry here.
	UserEmails map[string]string `yaml:"user_emails"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		DatabasePath:        "church-connect.db",
		SyncIntervalMinutes: 15,
		SMTP:                SMTPConfig{Port: 587},
	}
}

// Normalize fills missing values with defaults so a partial config file still
// behaves correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "church-connect.db"
	}
	if c.SyncIntervalMinutes <= 0 {
		c.SyncIntervalMinutes = 15
	}
	if c.SMTP.Port <= 0 {
		c.SMTP.Port = 587
	}
}

// Load reads configuration from the given YAML path. A missing file is not an
// error; defaults are returned. Environment variables override file values
// for secrets so credentials can stay out of the config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)
	cfg.Normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Listen, "CHURCH_CONNECT_LISTEN")
	overrideString(&cfg.DatabasePath, "CHURCH_CONNECT_DB")
	overrideInt(&cfg.SyncIntervalMinutes, "CHURCH_CONNECT_SYNC_INTERVAL_MIN")

	overrideString(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	overrideString(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	overrideString(&cfg.Microsoft.ClientID, "MICROSOFT_CLIENT_ID")
	overrideString(&cfg.Microsoft.ClientSecret, "MICROSOFT_CLIENT_SECRET")

	overrideString(&cfg.SMTP.Host, "SMTP_HOST")
	overrideInt(&cfg.SMTP.Port, "SMTP_PORT")
	overrideString(&cfg.SMTP.Username, "SMTP_USERNAME")
	overrideString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	overrideString(&cfg.SMTP.From, "SMTP_FROM")
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}
