package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pipelet/pipelet/internal/domain"
	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/logging"
	"github.com/pipelet/pipelet/internal/infrastructure/workflow_yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runFile   string
	runBranch string
	runSHA    string
	runRepo   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute matching workflows once for a synthesized push event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		var workflows []domain.Workflow
		if runFile != "" {
			wf, err := workflow_yaml.ParseFile(runFile)
			if err != nil {
				return err
			}
			workflows = []domain.Workflow{wf}
		} else {
			workflows, err = workflow_yaml.ParseDir(cfg.Workflows.Dir)
			if err != nil {
				return err
			}
		}
		if len(workflows) == 0 {
			return fmt.Errorf("no workflows found in %s", cfg.Workflows.Dir)
		}

		ev := domain.Event{
			Kind:       domain.EventPush,
			Ref:        "refs/heads/" + runBranch,
			Branch:     runBranch,
			SHA:        runSHA,
			Repo:       runRepo,
			ReceivedAt: time.Now().UTC(),
		}

		uc, _ := buildRuntime(log, cfg)

		matched := 0
		var failed error
		for _, wf := range workflows {
			if !wf.Trigger.Matches(ev) {
				log.Debug("trigger mismatch", zap.String("workflow", wf.Name))
				continue
			}
			matched++

			r, err := uc.Execute(cmd.Context(), wf, ev)
			printRun(r)
			if err != nil {
				failed = err
			}
		}

		if matched == 0 {
			return fmt.Errorf("no workflow matched push to %q", runBranch)
		}
		if failed != nil {
			return errors.New("run failed")
		}
		return nil
	},
}

func printRun(r domain.Run) {
	fmt.Printf("%s  %s  %s\n", r.ID, r.Workflow, r.Status)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  STEP\tSTATUS\tTOOK")
	for _, st := range r.Steps {
		took := st.FinishedAt.Sub(st.StartedAt).Round(time.Millisecond)
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", st.Name, st.Status, took)
	}
	_ = w.Flush()

	for _, st := range r.Steps {
		if st.Error != "" {
			fmt.Printf("  %s: %s\n", st.Name, st.Error)
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "run a single workflow file instead of the workflows dir")
	runCmd.Flags().StringVar(&runBranch, "branch", "main", "branch of the synthesized push event")
	runCmd.Flags().StringVar(&runSHA, "sha", "", "commit SHA of the synthesized push event")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "clone URL handed to the checkout action")

	rootCmd.AddCommand(runCmd)
}
