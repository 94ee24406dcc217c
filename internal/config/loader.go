package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".stackpilot", "stackpilot.json"), nil
}

// Path returns the resolved config path for this loader
func (l *Loader) Path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	return DefaultPath()
}

// Load loads the configuration from file and environment. Environment
// variables use the STACKPILOT_ prefix with underscores for nesting,
// e.g. STACKPILOT_STACKSPOT_CLIENT_SECRET.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.Path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("STACKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nested keys must be known to viper for AutomaticEnv to see them.
	bindEnvKeys(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Logging.File == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Logging.File = filepath.Join(home, ".stackpilot", "stackpilot.log")
		}
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.Path()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	var asMap map[string]any
	if err := mapFromConfig(cfg, &asMap); err != nil {
		return err
	}
	for key, value := range asMap {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Chmod(configPath, 0600)
}

func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"stackspot.realm",
		"stackspot.client_id",
		"stackspot.client_secret",
		"stackspot.agent_id",
		"stackspot.slug",
		"stackspot.auth_base_url",
		"stackspot.api_base_url",
		"stackspot.chat_url",
		"stackspot.max_requests_per_conversation",
		"stackspot.resolve_retry_attempts",
		"stackspot.resolve_initial_backoff_ms",
		"stackspot.resolve_max_backoff_ms",
		"stackspot.http_timeout_seconds",
		"stackspot.relay_timeout_seconds",
		"server.host",
		"server.port",
		"server.timeout_seconds",
		"logging.level",
		"logging.file",
		"logging.console",
		"logging.pretty",
		"logging.redaction",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func mapFromConfig(cfg *Config, out *map[string]any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}
