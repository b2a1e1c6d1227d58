package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/runstore_fs"
	"github.com/spf13/cobra"
)

var runsJSON bool

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show stored runs, or one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		store := runstore_fs.New(cfg.Runs.Dir)

		if len(args) == 1 {
			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if runsJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			printRun(r)
			return nil
		}

		runs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		if runsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tBRANCH\tSHA\tTOOK")
		for _, r := range runs {
			sha := r.Event.SHA
			if len(sha) > 8 {
				sha = sha[:8]
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Workflow, r.Status, r.Event.Branch, sha,
				r.Duration().Round(time.Millisecond),
			)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print JSON")

	rootCmd.AddCommand(runsCmd)
}
