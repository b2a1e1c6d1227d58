package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		WebhookSecret string `yaml:"webhook_secret,omitempty"`
	} `yaml:"server"`

	Workflows struct {
		Dir string `yaml:"dir"`
	} `yaml:"workflows"`

	Workspace struct {
		Dir  string `yaml:"dir,omitempty"`
		Keep bool   `yaml:"keep,omitempty"`
	} `yaml:"workspace"`

	Runs struct {
		Dir string `yaml:"dir"`
	} `yaml:"runs"`

	Secrets struct {
		File string `yaml:"file"`
	} `yaml:"secrets"`

	Azure struct {
		TokenURL string        `yaml:"token_url"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"azure"`
}

func Load(path string) (Config, error) {
	var c Config

	c.Server.Addr = ":8484"
	c.Workflows.Dir = "workflows"
	c.Runs.Dir = expandHome("~/.local/share/pipelet/runs")
	c.Secrets.File = expandHome("~/.config/pipelet/secrets.yaml")
	c.Azure.TokenURL = "https://login.microsoftonline.com"
	c.Azure.Timeout = 30 * time.Second

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}

	if v := os.Getenv("PIPELET_ADDR"); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv("PIPELET_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}

	if v := os.Getenv("PIPELET_WORKFLOWS_DIR"); v != "" {
		c.Workflows.Dir = v
	}

	if v := os.Getenv("PIPELET_WORKSPACE_DIR"); v != "" {
		c.Workspace.Dir = v
	}

	if v := os.Getenv("PIPELET_RUNS_DIR"); v != "" {
		c.Runs.Dir = v
	}

	if v := os.Getenv("PIPELET_SECRETS_FILE"); v != "" {
		c.Secrets.File = v
	}

	if v := os.Getenv("PIPELET_AZURE_TOKEN_URL"); v != "" {
		c.Azure.TokenURL = v
	}

	if v := os.Getenv("PIPELET_AZURE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Azure.Timeout = d
		}
	}

	c.Workflows.Dir = expandHome(c.Workflows.Dir)
	c.Workspace.Dir = expandHome(c.Workspace.Dir)
	c.Runs.Dir = expandHome(c.Runs.Dir)
	c.Secrets.File = expandHome(c.Secrets.File)

	if c.Azure.Timeout <= 0 {
		c.Azure.Timeout = 30 * time.Second
	}

	if c.Workflows.Dir == "" {
		return c, errors.New("workflows dir is required")
	}

	if c.Runs.Dir == "" {
		return c, errors.New("runs dir is required")
	}

	if c.Secrets.File == "" {
		return c, errors.New("secrets file is required")
	}

	return c, nil
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
