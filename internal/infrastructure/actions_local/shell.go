package actions_local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

// Shell executes an inline run: script with sh -c in the run workspace.
type Shell struct {
	log *zap.Logger
}

func NewShell(log *zap.Logger) *Shell {
	return &Shell{log: log}
}

func (a *Shell) Name() string { return "run" }

func (a *Shell) Run(ctx context.Context, sc *domain.StepContext, params map[string]string) (domain.ActionOutcome, error) {
	script := params["run"]
	if strings.TrimSpace(script) == "" {
		return domain.ActionOutcome{}, errors.New("run: empty script")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = sc.Workspace
	cmd.Env = append(os.Environ(),
		"CI=true",
		"PIPELET_RUN_ID="+sc.RunID,
		"PIPELET_WORKSPACE="+sc.Workspace,
	)
	cmd.Env = append(cmd.Env, envPairs(sc.Env)...)

	b, err := cmd.CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return domain.ActionOutcome{Output: string(b)}, fmt.Errorf("script exited with code %d", ee.ExitCode())
		}
		return domain.ActionOutcome{Output: string(b)}, err
	}
	return domain.ActionOutcome{Output: string(b)}, nil
}
