package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FromYAMLAndEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	cfgFile := filepath.Join(tmp, "pipelet.yaml")

	yaml := `
server:
  addr: ":9000"
  webhook_secret: from-yaml

workflows:
  dir: /etc/pipelet/workflows

runs:
  dir: /var/lib/pipelet/runs

secrets:
  file: /etc/pipelet/secrets.yaml

azure:
  timeout: 5s
`
	if err := os.WriteFile(cfgFile, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("PIPELET_WEBHOOK_SECRET", "from-env")
	defer os.Unsetenv("PIPELET_WEBHOOK_SECRET")

	c, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Server.WebhookSecret != "from-env" {
		t.Errorf("env override failed, got %s", c.Server.WebhookSecret)
	}
	if c.Server.Addr != ":9000" {
		t.Errorf("addr from yaml failed, got %s", c.Server.Addr)
	}
	if c.Workflows.Dir != "/etc/pipelet/workflows" {
		t.Errorf("workflows dir from yaml failed, got %s", c.Workflows.Dir)
	}
	if c.Azure.Timeout != 5*time.Second {
		t.Errorf("timeout from yaml failed, got %s", c.Azure.Timeout)
	}
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Server.Addr != ":8484" {
		t.Errorf("default addr, got %s", c.Server.Addr)
	}
	if c.Azure.TokenURL != "https://login.microsoftonline.com" {
		t.Errorf("default token url, got %s", c.Azure.TokenURL)
	}
	if c.Azure.Timeout != 30*time.Second {
		t.Errorf("default timeout, got %s", c.Azure.Timeout)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	cfgFile := filepath.Join(tmp, "pipelet.yaml")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	c.Workflows.Dir = filepath.Join(tmp, "workflows")

	if err := Save(cfgFile, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Workflows.Dir != c.Workflows.Dir {
		t.Errorf("round trip workflows dir, got %s", got.Workflows.Dir)
	}
}
