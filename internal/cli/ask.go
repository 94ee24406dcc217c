package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var askPlain bool

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a single prompt to the agent",
	Long: `Send one prompt to the configured StackSpot agent and print the
answer to stdout. The answer is streamed as it arrives.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "print the full answer once instead of streaming")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("prompt must not be blank")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Keep stdout clean for the answer; logs go to the file if one
	// is configured.
	l, err := setupLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer l.Close()

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if askPlain {
		res := orch.Ask(ctx, prompt)
		if !res.OK() {
			return errors.New(res.ErrorMessage())
		}
		fmt.Println(res.Answer)
		if res.Degraded {
			fmt.Fprintln(os.Stderr, "warning: the agent returned a very short answer")
		}
		return nil
	}

	res := orch.AskStream(ctx, prompt, func(fragment string) {
		fmt.Print(fragment)
	})
	if !res.OK() {
		fmt.Println()
		return errors.New(res.ErrorMessage())
	}
	fmt.Println()
	if res.Degraded {
		fmt.Fprintln(os.Stderr, "warning: the agent returned a very short answer")
	}

	return nil
}
