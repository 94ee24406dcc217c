package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main stackpilot configuration
type Config struct {
	// StackSpot platform credentials and endpoints
	StackSpot StackSpotConfig `json:"stackspot" mapstructure:"stackspot"`

	// HTTP front end
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// StackSpotConfig holds the platform credentials and tuning knobs.
// Realm, client id, client secret, agent id and slug are opaque
// required strings supplied by the operator.
type StackSpotConfig struct {
	Realm        string `json:"realm" mapstructure:"realm"`
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	AgentID      string `json:"agent_id" mapstructure:"agent_id"`
	Slug         string `json:"slug" mapstructure:"slug"`

	// Endpoint overrides, mainly for tests. Empty means the public
	// StackSpot endpoints.
	AuthBaseURL string `json:"auth_base_url,omitempty" mapstructure:"auth_base_url"`
	APIBaseURL  string `json:"api_base_url,omitempty" mapstructure:"api_base_url"`
	ChatURL     string `json:"chat_url,omitempty" mapstructure:"chat_url"`

	MaxRequestsPerConversation int `json:"max_requests_per_conversation" mapstructure:"max_requests_per_conversation"`

	ResolveRetryAttempts    int `json:"resolve_retry_attempts" mapstructure:"resolve_retry_attempts"`
	ResolveInitialBackoffMs int `json:"resolve_initial_backoff_ms" mapstructure:"resolve_initial_backoff_ms"`
	ResolveMaxBackoffMs     int `json:"resolve_max_backoff_ms" mapstructure:"resolve_max_backoff_ms"`

	HTTPTimeoutSeconds  int `json:"http_timeout_seconds" mapstructure:"http_timeout_seconds"`
	RelayTimeoutSeconds int `json:"relay_timeout_seconds" mapstructure:"relay_timeout_seconds"`
}

// ServerConfig holds the serve-mode HTTP server configuration
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with sensible defaults. Credentials
// have no defaults; they must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		StackSpot: StackSpotConfig{
			MaxRequestsPerConversation: 10,
			ResolveRetryAttempts:       6,
			ResolveInitialBackoffMs:    1000,
			ResolveMaxBackoffMs:        8000,
			HTTPTimeoutSeconds:         30,
			RelayTimeoutSeconds:        300,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           3030,
			TimeoutSeconds: 330,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// HTTPTimeout returns the timeout for token and quick-command calls.
func (c StackSpotConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// RelayTimeout returns the timeout for the streaming chat call.
func (c StackSpotConfig) RelayTimeout() time.Duration {
	return time.Duration(c.RelayTimeoutSeconds) * time.Second
}

// ResolveInitialBackoff returns the first callback retry delay.
func (c StackSpotConfig) ResolveInitialBackoff() time.Duration {
	return time.Duration(c.ResolveInitialBackoffMs) * time.Millisecond
}

// ResolveMaxBackoff returns the backoff ceiling for callback retries.
func (c StackSpotConfig) ResolveMaxBackoff() time.Duration {
	return time.Duration(c.ResolveMaxBackoffMs) * time.Millisecond
}

// String returns the config as JSON with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.StackSpot.ClientSecret != "" {
		masked.StackSpot.ClientSecret = "***"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
