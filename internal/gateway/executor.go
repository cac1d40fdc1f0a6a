package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// Executor launches the agent work for one claimed run. Implementations
// receive the versioned invocation payload and block until the work ends.
type Executor interface {
	Invoke(ctx context.Context, payload domain.InvocationPayload) error
}

// CommandExecutor spawns a configured command per run and writes the
// invocation payload to its stdin, per the executor contract. Unknown
// executor_config keys are the executor's problem to ignore.
type CommandExecutor struct {
	Command string
}

// Invoke runs the command to completion.
func (e *CommandExecutor) Invoke(ctx context.Context, payload domain.InvocationPayload) error {
	if e.Command == "" {
		return fmt.Errorf("no executor command configured")
	}
	stdin, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal invocation payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if payload.ProjectDir != "" {
		cmd.Dir = payload.ProjectDir
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("executor exited with error: %w", err)
	}
	return nil
}
