package actions_local

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

// Checkout clones the event's commit into the run workspace with a
// shallow fetch. It shells out to the git CLI.
type Checkout struct {
	log *zap.Logger
	git string
}

func NewCheckout(log *zap.Logger) *Checkout {
	return &Checkout{log: log, git: "git"}
}

func (a *Checkout) Name() string { return "actions/checkout" }

func (a *Checkout) Run(ctx context.Context, sc *domain.StepContext, params map[string]string) (domain.ActionOutcome, error) {
	repo := params["repository"]
	if repo == "" {
		repo = sc.Event.Repo
	}
	if repo == "" {
		return domain.ActionOutcome{}, errors.New("checkout: event carries no repository URL")
	}

	ref := params["ref"]
	if ref == "" {
		ref = sc.Event.SHA
	}
	if ref == "" && sc.Event.Branch != "" {
		ref = "refs/heads/" + sc.Event.Branch
	}
	if ref == "" {
		ref = "HEAD"
	}

	a.log.Debug("checkout",
		zap.String("run", sc.RunID),
		zap.String("repo", repo),
		zap.String("ref", ref),
	)

	cmds := [][]string{
		{"init", "--quiet", "."},
		{"remote", "add", "origin", repo},
		{"fetch", "--quiet", "--depth", "1", "origin", ref},
		{"checkout", "--quiet", "--force", "FETCH_HEAD"},
	}

	var out strings.Builder
	for _, argv := range cmds {
		cmd := exec.CommandContext(ctx, a.git, argv...)
		cmd.Dir = sc.Workspace
		b, err := cmd.CombinedOutput()
		out.Write(b)
		if err != nil {
			return domain.ActionOutcome{Output: out.String()}, fmt.Errorf("git %s: %w", argv[0], err)
		}
	}

	return domain.ActionOutcome{Output: out.String()}, nil
}
