package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the configured StackSpot
agent. Answers stream to the terminal as they arrive.

Commands inside the session:
  :new    discard the current conversation and start a fresh one
  :quit   leave the session (also :exit or Ctrl-D)`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

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

	fmt.Printf("stackpilot %s — chatting with agent %s (:quit to leave)\n", version, cfg.StackSpot.AgentID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		prompt := strings.TrimSpace(scanner.Text())
		switch prompt {
		case "":
			fmt.Println("prompt must not be blank")
			continue
		case ":quit", ":exit":
			return nil
		case ":new":
			orch.ResetConversation()
			fmt.Println("started a new conversation")
			continue
		}

		res := orch.AskStream(ctx, prompt, func(fragment string) {
			fmt.Print(fragment)
		})
		fmt.Println()

		if !res.OK() {
			fmt.Fprintf(os.Stderr, "error: %s\n", res.ErrorMessage())
			continue
		}
		if res.Degraded {
			fmt.Fprintln(os.Stderr, "warning: the agent returned a very short answer")
		}
	}
}
