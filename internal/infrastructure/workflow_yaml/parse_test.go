package workflow_yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const deployYAML = `
name: Build and deploy container app

on:
  push:
    branches: [main]

jobs:
  build-and-deploy:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4

      - name: Log in to Azure
        uses: azure/login@v2
        with:
          credentials: ${{ secrets.AZURE_CREDENTIALS }}

      - name: Build and deploy
        uses: azure/container-apps-deploy-action@v2
        with:
          appSourcePath: ${{ github.workspace }}/src
          acrName: cs553cs4nora.azurecr.io
          containerAppName: cs553-cs4-nora
          resourceGroup: cs553_cs4_nora
`

func TestParse_DeployWorkflow(t *testing.T) {
	wf, err := Parse([]byte(deployYAML), "deploy.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wf.Name != "Build and deploy container app" {
		t.Errorf("name: got %q", wf.Name)
	}
	if wf.Trigger.Push == nil {
		t.Fatal("expected push trigger")
	}
	if len(wf.Trigger.Push.Branches) != 1 || wf.Trigger.Push.Branches[0] != "main" {
		t.Errorf("branches: got %v", wf.Trigger.Push.Branches)
	}
	if wf.Job.ID != "build-and-deploy" {
		t.Errorf("job id: got %q", wf.Job.ID)
	}
	if wf.Job.RunsOn != "ubuntu-latest" {
		t.Errorf("runs-on: got %q", wf.Job.RunsOn)
	}
	if len(wf.Job.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(wf.Job.Steps))
	}

	login := wf.Job.Steps[1]
	if login.Uses != "azure/login@v2" {
		t.Errorf("step 2 uses: got %q", login.Uses)
	}
	if login.With["credentials"] != "${{ secrets.AZURE_CREDENTIALS }}" {
		t.Errorf("secret span not kept verbatim: got %q", login.With["credentials"])
	}

	deploy := wf.Job.Steps[2]
	for _, k := range []string{"appSourcePath", "acrName", "containerAppName", "resourceGroup"} {
		if deploy.With[k] == "" {
			t.Errorf("deploy step missing %s", k)
		}
	}
}

func TestParse_OnShorthand(t *testing.T) {
	cases := []struct {
		name string
		on   string
		push bool
	}{
		{"scalar push", "on: push", true},
		{"scalar other", "on: workflow_dispatch", false},
		{"list", "on: [push, workflow_dispatch]", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := tc.on + `
jobs:
  j:
    steps:
      - run: "true"
`
			wf, err := Parse([]byte(src), "x.yml")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := wf.Trigger.Push != nil; got != tc.push {
				t.Errorf("push trigger = %v, want %v", got, tc.push)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no jobs",
			src:  "on: push\n",
			want: "no jobs",
		},
		{
			name: "two jobs",
			src: `
on: push
jobs:
  a:
    steps: [{run: "true"}]
  b:
    steps: [{run: "true"}]
`,
			want: "exactly one",
		},
		{
			name: "no steps",
			src: `
on: push
jobs:
  a:
    steps: []
`,
			want: "no steps",
		},
		{
			name: "uses and run together",
			src: `
on: push
jobs:
  a:
    steps:
      - uses: actions/checkout@v4
        run: echo hi
`,
			want: "both uses and run",
		},
		{
			name: "with without uses",
			src: `
on: push
jobs:
  a:
    steps:
      - run: echo hi
        with: {k: v}
`,
			want: "with requires uses",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "x.yml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParse_NameDefaultsToFileName(t *testing.T) {
	wf, err := Parse([]byte("on: push\njobs:\n  j:\n    steps: [{run: \"true\"}]\n"), "/etc/pipelet/workflows/deploy.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Name != "deploy" {
		t.Errorf("name: got %q", wf.Name)
	}
}

func TestParseDir(t *testing.T) {
	tmp := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmp, "b.yml"), []byte(deployYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "a.yaml"), []byte("name: first\non: push\njobs:\n  j:\n    steps: [{run: \"true\"}]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	wfs, err := ParseDir(tmp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wfs) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(wfs))
	}
	if wfs[0].Name != "first" {
		t.Errorf("expected name order, got %q first", wfs[0].Name)
	}
}

func TestParseDir_Missing(t *testing.T) {
	wfs, err := ParseDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wfs) != 0 {
		t.Errorf("expected no workflows, got %d", len(wfs))
	}
}
