package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunohrs/stackpilot/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration",
	Long: `Interactively set the StackSpot credentials and agent identifiers
and save them to the configuration file. Existing values are kept when
the prompt is left empty.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("StackSpot account settings (leave empty to keep the current value):")
	cfg.StackSpot.Realm = promptValue(reader, "Realm", cfg.StackSpot.Realm, false)
	cfg.StackSpot.ClientID = promptValue(reader, "Client ID", cfg.StackSpot.ClientID, false)
	cfg.StackSpot.ClientSecret = promptValue(reader, "Client secret", cfg.StackSpot.ClientSecret, true)
	cfg.StackSpot.AgentID = promptValue(reader, "Agent ID", cfg.StackSpot.AgentID, false)
	cfg.StackSpot.Slug = promptValue(reader, "Quick-command slug", cfg.StackSpot.Slug, false)

	if errs := config.NewValidator().ValidateCredentials(cfg); len(errs) > 0 {
		fmt.Println("\nWarning: the configuration is still incomplete:")
		for _, err := range errs {
			fmt.Printf("  - %v\n", err)
		}
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	path, err := loader.Path()
	if err != nil {
		return err
	}

	fmt.Printf("\nConfiguration saved to: %s\n", path)
	fmt.Println("\nTry it with: stackpilot ask \"hello\"")

	return nil
}

func promptValue(reader *bufio.Reader, label, current string, secret bool) string {
	display := current
	if secret && current != "" {
		display = "***"
	}
	if display != "" {
		fmt.Printf("  %s [%s]: ", label, display)
	} else {
		fmt.Printf("  %s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}

	value := strings.TrimSpace(line)
	if value == "" {
		return current
	}
	return value
}
