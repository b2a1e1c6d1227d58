package actions_local

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

// deployParams must all be present and non-empty for the deploy to start.
var deployParams = []string{"appSourcePath", "acrName", "containerAppName", "resourceGroup"}

// Deploy delegates the build-and-deploy to the az CLI. It requires the
// session established by the login action; the token is handed to az via
// the environment, never via argv.
type Deploy struct {
	log *zap.Logger
	az  string
}

func NewDeploy(log *zap.Logger, azPath string) *Deploy {
	if azPath == "" {
		azPath = "az"
	}
	return &Deploy{log: log, az: azPath}
}

func (a *Deploy) Name() string { return "azure/container-apps-deploy-action" }

func (a *Deploy) Run(ctx context.Context, sc *domain.StepContext, params map[string]string) (domain.ActionOutcome, error) {
	if sc.Session == nil {
		return domain.ActionOutcome{}, fmt.Errorf("deploy: %w", domain.ErrNoSession)
	}

	for _, k := range deployParams {
		if params[k] == "" {
			return domain.ActionOutcome{}, fmt.Errorf("deploy: parameter %s is required", k)
		}
	}

	a.log.Debug("deploy",
		zap.String("run", sc.RunID),
		zap.String("app", params["containerAppName"]),
		zap.String("resource_group", params["resourceGroup"]),
		zap.String("registry", params["acrName"]),
	)

	args := []string{
		"containerapp", "up",
		"--name", params["containerAppName"],
		"--resource-group", params["resourceGroup"],
		"--registry-server", params["acrName"],
		"--source", params["appSourcePath"],
	}

	cmd := exec.CommandContext(ctx, a.az, args...)
	cmd.Dir = sc.Workspace
	cmd.Env = append(os.Environ(), envPairs(sc.Env)...)
	cmd.Env = append(cmd.Env,
		"AZURE_ACCESS_TOKEN="+sc.Session.Token,
		"AZURE_TENANT_ID="+sc.Session.TenantID,
		"AZURE_SUBSCRIPTION_ID="+sc.Session.SubscriptionID,
	)

	b, err := cmd.CombinedOutput()
	if err != nil {
		return domain.ActionOutcome{Output: string(b)}, fmt.Errorf("az containerapp up: %w", err)
	}
	return domain.ActionOutcome{Output: string(b)}, nil
}
