package cli

import (
	"fmt"
	"os"

	"github.com/pipelet/pipelet/internal/application"
	"github.com/pipelet/pipelet/internal/domain"
	"github.com/pipelet/pipelet/internal/infrastructure/actions_local"
	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/expr_goja"
	"github.com/pipelet/pipelet/internal/infrastructure/notify_libnotify"
	"github.com/pipelet/pipelet/internal/infrastructure/runstore_fs"
	"github.com/pipelet/pipelet/internal/infrastructure/secrets_file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "pipelet",
	Short: "Push-to-deploy pipeline runner (workflow triggers + delegated actions)",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "pipelet.yaml", "path to pipelet.yaml")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	})

	comp := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	rootCmd.AddCommand(comp)
}

// buildRuntime wires the engine: actions, secrets, expression evaluator,
// run store and notifier behind the run use case.
func buildRuntime(log *zap.Logger, cfg config.Config) (*application.RunUseCase, domain.RunStore) {
	secrets := secrets_file.New(cfg.Secrets.File)
	store := runstore_fs.New(cfg.Runs.Dir)
	note := notify_libnotify.NewSoft()

	registry := actions_local.NewRegistry(log, actions_local.Options{
		TokenURL: cfg.Azure.TokenURL,
		Timeout:  cfg.Azure.Timeout,
	})

	uc := application.NewRunUseCase(
		log,
		registry,
		secrets,
		expr_goja.New(),
		store,
		note,
		actions_local.NewShell(log),
		cfg.Workspace.Dir,
		cfg.Workspace.Keep,
	)
	return uc, store
}
