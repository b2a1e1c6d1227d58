package cli

import (
	"fmt"

	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/workflow_yaml"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check workflow files without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			workflows, err := workflow_yaml.ParseDir(cfg.Workflows.Dir)
			if err != nil {
				return err
			}
			for _, wf := range workflows {
				fmt.Printf("ok: %s (%s)\n", wf.Source, wf.Name)
			}
			if len(workflows) == 0 {
				fmt.Printf("no workflows in %s\n", cfg.Workflows.Dir)
			}
			return nil
		}

		for _, f := range files {
			wf, err := workflow_yaml.ParseFile(f)
			if err != nil {
				return err
			}
			fmt.Printf("ok: %s (%s)\n", f, wf.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
