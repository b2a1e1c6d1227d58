package application

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pipelet/pipelet/internal/domain"
	"github.com/pipelet/pipelet/internal/infrastructure/expr_goja"
	"go.uber.org/zap"
)

func pushEvent(branch string) domain.Event {
	return domain.Event{
		Kind:     domain.EventPush,
		Ref:      "refs/heads/" + branch,
		Branch:   branch,
		SHA:      "4f2d9c1a7b3e5d6f8a9b0c1d2e3f4a5b6c7d8e9f",
		Repo:     "https://github.com/acme/nora.git",
		RepoName: "acme/nora",
	}
}

func deployWorkflow() domain.Workflow {
	return domain.Workflow{
		Name: "deploy-container-app",
		Trigger: domain.Trigger{
			Push: &domain.PushFilter{Branches: []string{"main"}},
		},
		Job: domain.Job{
			ID:     "build-and-deploy",
			RunsOn: "ubuntu-latest",
			Steps: []domain.Step{
				{Uses: "actions/checkout@v4"},
				{
					Uses: "azure/login@v2",
					With: map[string]string{"credentials": "${{ secrets.AZURE_CREDENTIALS }}"},
				},
				{
					Uses: "azure/container-apps-deploy-action@v2",
					With: map[string]string{
						"appSourcePath":    "${{ github.workspace }}/src",
						"acrName":          "cs553cs4nora.azurecr.io",
						"containerAppName": "cs553-cs4-nora",
						"resourceGroup":    "cs553_cs4_nora",
					},
				},
			},
		},
	}
}

type fixture struct {
	uc       *RunUseCase
	checkout *domain.MockAction
	login    *domain.MockAction
	deploy   *domain.MockAction
	shell    *domain.MockAction
	store    *domain.MockRunStore
	note     *domain.MockNotifier
	journal  *[]string
}

func newFixture(t *testing.T, secrets map[string]string) *fixture {
	t.Helper()

	journal := &[]string{}
	record := func(name string) func(*domain.StepContext, map[string]string) {
		return func(*domain.StepContext, map[string]string) {
			*journal = append(*journal, name)
		}
	}

	f := &fixture{
		checkout: &domain.MockAction{ActionName: "actions/checkout", OnRun: record("checkout")},
		login: &domain.MockAction{
			ActionName: "azure/login",
			Out:        domain.ActionOutcome{Session: &domain.Session{Token: "tok-123", TokenType: "Bearer"}},
			OnRun:      record("login"),
		},
		deploy:  &domain.MockAction{ActionName: "azure/container-apps-deploy-action", OnRun: record("deploy")},
		shell:   &domain.MockAction{ActionName: "shell", OnRun: record("shell")},
		store:   &domain.MockRunStore{},
		note:    &domain.MockNotifier{},
		journal: journal,
	}

	resolver := &domain.MockActionResolver{Actions: map[string]domain.Action{
		"actions/checkout":                   f.checkout,
		"azure/login":                        f.login,
		"azure/container-apps-deploy-action": f.deploy,
	}}

	f.uc = NewRunUseCase(
		zap.NewNop(),
		resolver,
		&domain.MockSecrets{Values: secrets},
		expr_goja.New(),
		f.store,
		f.note,
		f.shell,
		t.TempDir(),
		false,
	)
	return f
}

func azureSecrets() map[string]string {
	return map[string]string{"AZURE_CREDENTIALS": `{"clientId":"id","clientSecret":"s3cr3t"}`}
}

func TestExecute_RunsStepsInDeclaredOrder(t *testing.T) {
	f := newFixture(t, azureSecrets())

	r, err := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"checkout", "login", "deploy"}
	if len(*f.journal) != len(want) {
		t.Fatalf("expected %d steps run, got %v", len(want), *f.journal)
	}
	for i, name := range want {
		if (*f.journal)[i] != name {
			t.Errorf("step %d: expected %q, got %q", i, name, (*f.journal)[i])
		}
	}

	if r.Status != domain.RunSucceeded {
		t.Errorf("expected status %q, got %q", domain.RunSucceeded, r.Status)
	}
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(r.Steps))
	}
	for _, s := range r.Steps {
		if s.Status != domain.StepSuccess {
			t.Errorf("step %q: expected success, got %q", s.Name, s.Status)
		}
	}
	if len(f.store.Saved) != 1 {
		t.Errorf("expected 1 persisted run, got %d", len(f.store.Saved))
	}
	if len(f.note.Messages) != 1 || !strings.HasPrefix(f.note.Messages[0], "✅") {
		t.Errorf("expected success notification, got %v", f.note.Messages)
	}
}

func TestExecute_FailFastSkipsRemainingSteps(t *testing.T) {
	f := newFixture(t, azureSecrets())
	f.login.Err = errors.New("AADSTS700016: application not found")

	r, err := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if f.deploy.Called != 0 {
		t.Errorf("deploy ran %d times after auth failure, expected 0", f.deploy.Called)
	}
	if r.Status != domain.RunFailed {
		t.Errorf("expected status %q, got %q", domain.RunFailed, r.Status)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("expected 2 step results (checkout, login), got %d", len(r.Steps))
	}
	if r.Steps[1].Status != domain.StepFailure {
		t.Errorf("expected login failure recorded, got %q", r.Steps[1].Status)
	}
	if len(f.note.Messages) != 1 || !strings.HasPrefix(f.note.Messages[0], "❌") {
		t.Errorf("expected failure notification, got %v", f.note.Messages)
	}
}

func TestExecute_DeployParamsAndSessionThreading(t *testing.T) {
	f := newFixture(t, azureSecrets())

	r, err := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.login.LastParams["credentials"]; got != azureSecrets()["AZURE_CREDENTIALS"] {
		t.Errorf("login credentials = %q, want the resolved secret", got)
	}

	p := f.deploy.LastParams
	if got, want := p["appSourcePath"], r.Workspace+"/src"; got != want {
		t.Errorf("appSourcePath = %q, want %q", got, want)
	}
	if p["acrName"] != "cs553cs4nora.azurecr.io" {
		t.Errorf("acrName = %q", p["acrName"])
	}
	if p["containerAppName"] != "cs553-cs4-nora" {
		t.Errorf("containerAppName = %q", p["containerAppName"])
	}
	if p["resourceGroup"] != "cs553_cs4_nora" {
		t.Errorf("resourceGroup = %q", p["resourceGroup"])
	}

	if f.checkout.LastSC.Session != nil {
		t.Error("checkout should run without a session")
	}
	if f.deploy.LastSC.Session == nil || f.deploy.LastSC.Session.Token != "tok-123" {
		t.Errorf("deploy session = %+v, want token from login", f.deploy.LastSC.Session)
	}
}

func TestExecute_IfFalseSkipsStepAndContinues(t *testing.T) {
	f := newFixture(t, nil)
	wf := domain.Workflow{
		Name:    "conditional",
		Trigger: domain.Trigger{Push: &domain.PushFilter{}},
		Job: domain.Job{
			ID: "job",
			Steps: []domain.Step{
				{Name: "only on release", Uses: "actions/checkout@v4", If: "github.ref_name == 'release'"},
				{Name: "always", Run: "echo hi"},
			},
		},
	}

	r, err := f.uc.Execute(context.Background(), wf, pushEvent("main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.checkout.Called != 0 {
		t.Errorf("skipped step ran %d times", f.checkout.Called)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(r.Steps))
	}
	if r.Steps[0].Status != domain.StepSkipped {
		t.Errorf("expected skipped, got %q", r.Steps[0].Status)
	}
	if r.Steps[1].Status != domain.StepSuccess {
		t.Errorf("expected success, got %q", r.Steps[1].Status)
	}
	if f.shell.LastParams["run"] != "echo hi" {
		t.Errorf("shell script = %q", f.shell.LastParams["run"])
	}
	if r.Status != domain.RunSucceeded {
		t.Errorf("expected succeeded, got %q", r.Status)
	}
}

func TestExecute_MissingSecretFailsStep(t *testing.T) {
	f := newFixture(t, nil) // no AZURE_CREDENTIALS stored

	r, err := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, domain.ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}

	if f.login.Called != 0 {
		t.Errorf("login ran despite missing secret")
	}
	if r.Status != domain.RunFailed {
		t.Errorf("expected failed, got %q", r.Status)
	}
	// checkout succeeded, login failed before running
	if len(r.Steps) != 2 || r.Steps[1].Status != domain.StepFailure {
		t.Fatalf("unexpected step results: %+v", r.Steps)
	}
}

func TestExecute_SecretValuesScrubbedFromResults(t *testing.T) {
	f := newFixture(t, map[string]string{"AZURE_CREDENTIALS": "super-secret-value"})
	f.login.Out = domain.ActionOutcome{
		Output:  "logged in with super-secret-value",
		Session: &domain.Session{Token: "tok"},
	}
	f.deploy.Err = errors.New("deploy rejected credential super-secret-value")

	r, _ := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))

	login := r.Steps[1]
	if strings.Contains(login.Output, "super-secret-value") {
		t.Errorf("secret leaked into output: %q", login.Output)
	}
	if !strings.Contains(login.Output, "***") {
		t.Errorf("expected scrubbed marker in output, got %q", login.Output)
	}
	deploy := r.Steps[2]
	if strings.Contains(deploy.Error, "super-secret-value") {
		t.Errorf("secret leaked into error: %q", deploy.Error)
	}
}

func TestExecute_UnknownActionFailsStep(t *testing.T) {
	f := newFixture(t, nil)
	wf := domain.Workflow{
		Name:    "bad",
		Trigger: domain.Trigger{Push: &domain.PushFilter{}},
		Job: domain.Job{
			ID:    "job",
			Steps: []domain.Step{{Uses: "acme/does-not-exist@v1"}},
		},
	}

	r, err := f.uc.Execute(context.Background(), wf, pushEvent("main"))
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if r.Status != domain.RunFailed {
		t.Errorf("expected failed, got %q", r.Status)
	}
}

func TestExecute_WorkspaceRemovedAfterRun(t *testing.T) {
	f := newFixture(t, azureSecrets())

	r, err := f.uc.Execute(context.Background(), deployWorkflow(), pushEvent("main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Workspace == "" {
		t.Fatal("expected workspace path recorded")
	}
	if _, err := os.Stat(r.Workspace); !os.IsNotExist(err) {
		t.Errorf("expected workspace %q to be removed", r.Workspace)
	}
}

func TestExecute_EnvMergedAndInterpolated(t *testing.T) {
	f := newFixture(t, nil)
	wf := domain.Workflow{
		Name:    "env",
		Trigger: domain.Trigger{Push: &domain.PushFilter{}},
		Job: domain.Job{
			ID:  "job",
			Env: map[string]string{"STAGE": "prod", "REGION": "eu"},
			Steps: []domain.Step{
				{
					Run: "env",
					Env: map[string]string{"STAGE": "dev", "BRANCH": "${{ github.ref_name }}"},
				},
			},
		},
	}

	if _, err := f.uc.Execute(context.Background(), wf, pushEvent("main")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := f.shell.LastSC.Env
	if env["STAGE"] != "dev" {
		t.Errorf("step env should win: STAGE = %q", env["STAGE"])
	}
	if env["REGION"] != "eu" {
		t.Errorf("job env should flow through: REGION = %q", env["REGION"])
	}
	if env["BRANCH"] != "main" {
		t.Errorf("env value not interpolated: BRANCH = %q", env["BRANCH"])
	}
}
