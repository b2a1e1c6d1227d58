package cli

import (
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pipelet/pipelet/internal/application"
	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/logging"
	"github.com/pipelet/pipelet/internal/infrastructure/webhook_http"
	"github.com/pipelet/pipelet/internal/infrastructure/workflow_yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook intake and run matching workflows on push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		workflows, err := workflow_yaml.ParseDir(cfg.Workflows.Dir)
		if err != nil {
			return err
		}
		if len(workflows) == 0 {
			log.Warn("no workflows loaded", zap.String("dir", cfg.Workflows.Dir))
		}

		uc, store := buildRuntime(log, cfg)
		disp := application.NewDispatcher(log, uc, workflows)
		watchWorkflows(cfg.Workflows.Dir, log, disp)

		srv := webhook_http.New(log, disp, store, cfg.Server.Addr, cfg.Server.WebhookSecret)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info("start",
			zap.String("version", version),
			zap.String("addr", cfg.Server.Addr),
			zap.Int("workflows", len(workflows)),
			zap.String("workflows_dir", cfg.Workflows.Dir),
			zap.String("runs_dir", cfg.Runs.Dir),
			zap.Bool("webhook_signed", cfg.Server.WebhookSecret != ""),
		)

		err = srv.Run(ctx)

		log.Info("draining in-flight runs")
		disp.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// watchWorkflows reloads workflow definitions when files under dir change.
// In-flight runs keep the definitions they started with.
func watchWorkflows(dir string, log *zap.Logger, disp *application.Dispatcher) {
	if dir == "" {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		return
	}

	go func() {
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		fire := func() {
			workflows, err := workflow_yaml.ParseDir(dir)
			if err != nil {
				log.Warn("workflows reload failed", zap.Error(err))
				return
			}
			disp.UpdateWorkflows(workflows)
		}

		startTimer := func() {
			if timer == nil {
				timer = time.AfterFunc(300*time.Millisecond, fire)
			} else {
				timer.Reset(300 * time.Millisecond)
			}
		}

		if err := w.Add(dir); err != nil {
			log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
			return
		}

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				ext := filepath.Ext(ev.Name)
				if ext != ".yml" && ext != ".yaml" {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					startTimer()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()
}
