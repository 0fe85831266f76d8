// Package commands – agent.go
// Direct agent interaction: one-shot with -m, piped stdin, or an
// interactive REPL with persistent history.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

var exitCommands = map[string]bool{
	"exit": true, "quit": true, "/exit": true, "/quit": true, ":q": true,
}

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Interact with the agent directly",
		Long: `Talk to the agent from the terminal.

Examples:
  nanobot agent -m "What's on my plate today?"
  nanobot agent                 # interactive mode
  echo "summarize x.txt" | nanobot agent`,
		RunE: runAgent,
	}
	cmd.Flags().StringP("message", "m", "", "message to send to the agent")
	cmd.Flags().StringP("session", "s", "cli:direct", "session key")
	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg)

	provider, _, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	b := bus.New()
	defer b.Close()
	loop := buildLoop(cfg, b, provider, nil)
	go drainOutbound(b) // message-tool sends targeting the CLI land on stdout

	sessionKey, _ := cmd.Flags().GetString("session")
	ctx := cmd.Context()

	if message, _ := cmd.Flags().GetString("message"); message != "" {
		return runOnce(ctx, loop, message, sessionKey)
	}

	// Piped input: read everything, answer once.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		message := strings.TrimSpace(string(data))
		if message == "" {
			return fmt.Errorf("empty input")
		}
		return runOnce(ctx, loop, message, sessionKey)
	}

	return runInteractive(ctx, loop, sessionKey)
}

func runOnce(ctx context.Context, loop agentRunner, message, sessionKey string) error {
	reply, err := loop.ProcessDirect(ctx, message, sessionKey, "cli", "direct")
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

// agentRunner is the slice of agent.Loop the CLI needs.
type agentRunner interface {
	ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)
}

func runInteractive(ctx context.Context, loop agentRunner, sessionKey string) error {
	histFile := historyFile()
	if err := os.MkdirAll(filepath.Dir(histFile), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     histFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s Interactive mode (type exit or Ctrl+D to quit)\n\n", logo)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if exitCommands[strings.ToLower(input)] {
			break
		}

		reply, err := loop.ProcessDirect(ctx, input, sessionKey, "cli", "direct")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", reply)
	}

	fmt.Println("\nGoodbye!")
	return nil
}

// drainOutbound prints bus messages addressed to the CLI channel.
func drainOutbound(b *bus.MessageBus) {
	for msg := range b.ConsumeOutbound() {
		fmt.Printf("\n[%s → %s] %s\n", msg.Channel, msg.ChatID, msg.Content)
	}
}
