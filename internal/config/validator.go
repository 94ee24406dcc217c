package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRequired checks that a required opaque string is set
func (v *Validator) ValidateRequired(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateCredentials checks the fields every platform call depends on.
// Commands that talk to StackSpot must refuse to start when any fails.
func (v *Validator) ValidateCredentials(cfg *Config) []error {
	var errs []error

	required := map[string]string{
		"stackspot.realm":         cfg.StackSpot.Realm,
		"stackspot.client_id":     cfg.StackSpot.ClientID,
		"stackspot.client_secret": cfg.StackSpot.ClientSecret,
		"stackspot.agent_id":      cfg.StackSpot.AgentID,
		"stackspot.slug":          cfg.StackSpot.Slug,
	}
	for name, value := range required {
		if err := v.ValidateRequired(name, value); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errs = append(errs, err)
	}

	if cfg.StackSpot.MaxRequestsPerConversation < 0 {
		errs = append(errs, fmt.Errorf("stackspot.max_requests_per_conversation must be >= 0"))
	}
	if cfg.StackSpot.ResolveRetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("stackspot.resolve_retry_attempts must be >= 0"))
	}
	if cfg.StackSpot.ResolveInitialBackoffMs < 0 {
		errs = append(errs, fmt.Errorf("stackspot.resolve_initial_backoff_ms must be >= 0"))
	}
	if cfg.StackSpot.ResolveMaxBackoffMs < 0 {
		errs = append(errs, fmt.Errorf("stackspot.resolve_max_backoff_ms must be >= 0"))
	}
	if cfg.StackSpot.HTTPTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("stackspot.http_timeout_seconds must be >= 0"))
	}
	if cfg.StackSpot.RelayTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("stackspot.relay_timeout_seconds must be >= 0"))
	}

	return errs
}
