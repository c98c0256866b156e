// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`

	GithubTokens  []string `mapstructure:"GITHUB_TOKENS"`
	GithubBaseURL string   `mapstructure:"GITHUB_BASE_URL"`

	OpensearchHost     string `mapstructure:"OPENSEARCH_HOST"`
	OpensearchPort     int    `mapstructure:"OPENSEARCH_PORT"`
	OpensearchUser     string `mapstructure:"OPENSEARCH_USER"`
	OpensearchPasswd   string `mapstructure:"OPENSEARCH_PASSWD"`
	OpensearchScheme   string `mapstructure:"OPENSEARCH_SCHEME"`
	OpensearchInsecure bool   `mapstructure:"OPENSEARCH_INSECURE"`

	// DBURL enables the Postgres run ledger when set.
	DBURL string `mapstructure:"DB_URL"`

	ReposToSync      []string      `mapstructure:"REPOS_TO_SYNC"`
	SyncInterval     time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncConcurrency  int           `mapstructure:"SYNC_CONCURRENCY"`
	CommitsPageDelay time.Duration `mapstructure:"COMMITS_PAGE_DELAY"`
	IssuesDelayMin   time.Duration `mapstructure:"ISSUES_DELAY_MIN"`
	IssuesDelayMax   time.Duration `mapstructure:"ISSUES_DELAY_MAX"`
	// MaxPages overrides the per-type page caps when positive.
	MaxPages         int           `mapstructure:"MAX_PAGES"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
}

var defaults = map[string]any{
	"LOG_LEVEL":           "info",
	"GITHUB_TOKENS":       "",
	"GITHUB_BASE_URL":     "",
	"OPENSEARCH_HOST":     "",
	"OPENSEARCH_PORT":     9200,
	"OPENSEARCH_USER":     "",
	"OPENSEARCH_PASSWD":   "",
	"OPENSEARCH_SCHEME":   "https",
	"OPENSEARCH_INSECURE": true,
	"DB_URL":              "",
	"REPOS_TO_SYNC":       "",
	"SYNC_INTERVAL":       "24h",
	"SYNC_CONCURRENCY":    5,
	"COMMITS_PAGE_DELAY":  "1s",
	"ISSUES_DELAY_MIN":    "100ms",
	"ISSUES_DELAY_MAX":    "500ms",
	"MAX_PAGES":           0,
	"HTTP_ADDR":           ":8080",
}

// LoadConfig reads configuration from a .env file in dir and/or environment variables.
// Environment variables take precedence over the file.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.GithubTokens = compact(cfg.GithubTokens)
	cfg.ReposToSync = compact(cfg.ReposToSync)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.GithubTokens) == 0 {
		return errors.New("GITHUB_TOKENS must contain at least one token")
	}
	if c.OpensearchHost == "" {
		return errors.New("OPENSEARCH_HOST is a required configuration field")
	}
	if c.OpensearchPort <= 0 || c.OpensearchPort > 65535 {
		return fmt.Errorf("OPENSEARCH_PORT %d is out of range", c.OpensearchPort)
	}
	if len(c.ReposToSync) == 0 {
		return errors.New("REPOS_TO_SYNC must contain at least one repository")
	}
	if c.SyncInterval <= 0 {
		return errors.New("SYNC_INTERVAL must be positive")
	}
	if c.IssuesDelayMin < 0 || c.IssuesDelayMax < c.IssuesDelayMin {
		return errors.New("ISSUES_DELAY_MIN must be non-negative and not greater than ISSUES_DELAY_MAX")
	}
	if c.MaxPages < 0 {
		return errors.New("MAX_PAGES must not be negative")
	}
	return nil
}

// compact trims entries and drops empty ones left by trailing commas.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
