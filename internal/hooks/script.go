package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hailstorm-run/hailstorm/internal/store"
)

// ScriptHooks runs a configured shell command for each lifecycle point,
// with the agent's identifying fields exposed as HOOK_* environment
// variables. An empty command is a no-op for that hook. Grounded on the
// teacher's ScriptExecutor (run command or script file under a shell,
// bounded by a timeout), trimmed to the two hook points Hailstorm needs.
type ScriptHooks struct {
	Shell   string // defaults to /bin/bash
	Timeout time.Duration // defaults to 60s

	BeforeDestroyLoadAgentCmd  string
	AfterStopLoadGenerationCmd string
}

func (h *ScriptHooks) shell() string {
	if h.Shell != "" {
		return h.Shell
	}
	return "/bin/bash"
}

func (h *ScriptHooks) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 60 * time.Second
}

func (h *ScriptHooks) run(ctx context.Context, cmdStr string, agent *store.LoadAgent) error {
	if cmdStr == "" {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.shell(), "-c", cmdStr)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("HOOK_AGENT_ID=%d", agent.ID),
		fmt.Sprintf("HOOK_AGENT_IDENTIFIER=%s", agent.Identifier),
		fmt.Sprintf("HOOK_AGENT_PUBLIC_IP=%s", agent.PublicIPAddress),
		fmt.Sprintf("HOOK_AGENT_TYPE=%s", agent.Type),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hook command failed: %w, output: %s", err, string(output))
	}
	return nil
}

func (h *ScriptHooks) BeforeDestroyLoadAgent(ctx context.Context, agent *store.LoadAgent) error {
	return h.run(ctx, h.BeforeDestroyLoadAgentCmd, agent)
}

func (h *ScriptHooks) AfterStopLoadGeneration(ctx context.Context, agent *store.LoadAgent) error {
	return h.run(ctx, h.AfterStopLoadGenerationCmd, agent)
}
