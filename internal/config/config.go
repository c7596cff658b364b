// Package config handles environment variable configuration loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cragr/supportdesk/internal/jira"
)

// MinEncryptionKeyLength is the shortest accepted TOKEN_ENCRYPTION_KEY.
const MinEncryptionKeyLength = 32

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Operator credentials for credential mode
	JiraDomain        string
	JiraEmail         string
	JiraAPIToken      string
	JiraServiceDeskID string
	JiraRequestTypeID string
	JiraProjectKey    string
	JiraHTTPTimeout   time.Duration

	// OAuth application for delegated mode
	AtlassianClientID     string
	AtlassianClientSecret string
	AtlassianRedirectURL  string
	TokenEncryptionKey    string

	// Token store
	RedisAddr     string
	RedisPassword string

	// HTTP server settings
	HTTPPort      string
	SecureCookies bool

	LogLevel slog.Level
}

// Load reads configuration from environment variables and returns a Config.
// Missing operator credentials are not an error; the service then runs with
// mock tickets until a tenant connects a site.
func Load() (*Config, error) {
	cfg := &Config{
		JiraDomain:            os.Getenv("JIRA_DOMAIN"),
		JiraEmail:             os.Getenv("JIRA_EMAIL"),
		JiraAPIToken:          os.Getenv("JIRA_API_TOKEN"),
		JiraServiceDeskID:     os.Getenv("JIRA_SERVICE_DESK_ID"),
		JiraRequestTypeID:     os.Getenv("JIRA_REQUEST_TYPE_ID"),
		JiraProjectKey:        getEnvOrDefault("JIRA_PROJECT_KEY", jira.DefaultProjectKey),
		AtlassianClientID:     os.Getenv("ATLASSIAN_CLIENT_ID"),
		AtlassianClientSecret: os.Getenv("ATLASSIAN_CLIENT_SECRET"),
		AtlassianRedirectURL:  os.Getenv("ATLASSIAN_REDIRECT_URL"),
		TokenEncryptionKey:    os.Getenv("TOKEN_ENCRYPTION_KEY"),
		RedisAddr:             os.Getenv("REDIS_ADDR"), // Optional, in-process store if not set
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		HTTPPort:              getEnvOrDefault("HTTP_PORT", "8080"),
		SecureCookies:         getEnvOrDefault("SECURE_COOKIES", "true") != "false",
	}

	timeout, err := time.ParseDuration(getEnvOrDefault("JIRA_HTTP_TIMEOUT", jira.DefaultTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("JIRA_HTTP_TIMEOUT is invalid: %w", err)
	}
	cfg.JiraHTTPTimeout = timeout

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// OAuthEnabled reports whether delegated mode is configured.
func (c *Config) OAuthEnabled() bool {
	return c.AtlassianClientID != ""
}

// JiraDefaults returns the operator-level client settings.
func (c *Config) JiraDefaults() jira.Defaults {
	return jira.Defaults{
		Domain:        c.JiraDomain,
		Email:         c.JiraEmail,
		APIToken:      c.JiraAPIToken,
		ServiceDeskID: c.JiraServiceDeskID,
		RequestTypeID: c.JiraRequestTypeID,
		ProjectKey:    c.JiraProjectKey,
	}
}

// validate checks that partially configured features are complete.
func (c *Config) validate() error {
	if c.JiraHTTPTimeout <= 0 {
		return errors.New("JIRA_HTTP_TIMEOUT must be positive")
	}
	if strings.HasPrefix(c.JiraDomain, "http://") {
		return errors.New("JIRA_DOMAIN must not use http")
	}

	if !c.OAuthEnabled() {
		if c.AtlassianClientSecret != "" || c.AtlassianRedirectURL != "" {
			return errors.New("ATLASSIAN_CLIENT_ID is required when OAuth settings are present")
		}
		return nil
	}
	if c.AtlassianClientSecret == "" {
		return errors.New("ATLASSIAN_CLIENT_SECRET is required")
	}
	if c.AtlassianRedirectURL == "" {
		return errors.New("ATLASSIAN_REDIRECT_URL is required")
	}
	if len(c.TokenEncryptionKey) < MinEncryptionKeyLength {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be at least %d bytes", MinEncryptionKeyLength)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
