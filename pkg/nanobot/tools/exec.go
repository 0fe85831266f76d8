// Package tools – exec.go
// Shell execution tool with a hard timeout.
package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const execOutputLimit = 50_000

// ExecTool runs shell commands in the workspace.
type ExecTool struct {
	Workspace string
	Timeout   time.Duration
}

func NewExecTool(workspace string, timeout time.Duration) *ExecTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExecTool{Workspace: workspace, Timeout: timeout}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace and return its combined output."
}

func (t *ExecTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to run."},
		},
		"required": []any{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.Workspace
	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if len(result) > execOutputLimit {
		result = result[:execOutputLimit] + "\n... (output truncated)"
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", t.Timeout)
	}
	if err != nil {
		if result == "" {
			return "", fmt.Errorf("command failed: %w", err)
		}
		return fmt.Sprintf("command failed (%v):\n%s", err, result), nil
	}
	if result == "" {
		return "(no output)", nil
	}
	return result, nil
}
