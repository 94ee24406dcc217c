package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brunohrs/stackpilot/internal/config"
	"github.com/brunohrs/stackpilot/internal/logger"
	"github.com/brunohrs/stackpilot/pkg/auth"
	"github.com/brunohrs/stackpilot/pkg/conversation"
	"github.com/brunohrs/stackpilot/pkg/execution"
	"github.com/brunohrs/stackpilot/pkg/orchestrator"
	"github.com/brunohrs/stackpilot/pkg/relay"
)

// loadConfig loads the configuration honoring the --config and
// --log-level flags.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return cfg, loader, nil
}

// setupLogger installs the global logger from the logging section.
func setupLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console && cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
}

// buildOrchestrator wires the prompt pipeline from configuration.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	if errs := config.NewValidator().ValidateCredentials(cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return nil, errors.New("incomplete configuration: " + strings.Join(msgs, "; ") +
			" (run 'stackpilot configure' or set STACKPILOT_ environment variables)")
	}

	guard := auth.NewGuard(auth.Config{
		Realm:        cfg.StackSpot.Realm,
		ClientID:     cfg.StackSpot.ClientID,
		ClientSecret: cfg.StackSpot.ClientSecret,
		BaseURL:      cfg.StackSpot.AuthBaseURL,
		Timeout:      cfg.StackSpot.HTTPTimeout(),
	})

	executions := execution.NewClient(execution.Config{
		BaseURL:        cfg.StackSpot.APIBaseURL,
		Slug:           cfg.StackSpot.Slug,
		Timeout:        cfg.StackSpot.HTTPTimeout(),
		RetryAttempts:  cfg.StackSpot.ResolveRetryAttempts,
		InitialBackoff: cfg.StackSpot.ResolveInitialBackoff(),
		MaxBackoff:     cfg.StackSpot.ResolveMaxBackoff(),
	})

	relayClient := relay.NewClient(relay.Config{
		ChatURL: cfg.StackSpot.ChatURL,
		AgentID: cfg.StackSpot.AgentID,
		Timeout: cfg.StackSpot.RelayTimeout(),
	})

	session := conversation.NewSession(cfg.StackSpot.MaxRequestsPerConversation)

	return orchestrator.New(guard, executions, session, relayClient), nil
}
