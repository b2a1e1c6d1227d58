package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/workflow_yaml"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		workflows, err := workflow_yaml.ParseDir(cfg.Workflows.Dir)
		if err != nil {
			return err
		}

		type item struct {
			Name     string   `json:"name"`
			Source   string   `json:"source"`
			Branches []string `json:"branches,omitempty"`
			Steps    int      `json:"steps"`
		}

		items := make([]item, 0, len(workflows))
		for _, wf := range workflows {
			it := item{Name: wf.Name, Source: wf.Source, Steps: len(wf.Job.Steps)}
			if wf.Trigger.Push != nil {
				it.Branches = wf.Trigger.Push.Branches
			}
			items = append(items, it)
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tSOURCE\tBRANCHES\tSTEPS")
		for _, it := range items {
			branches := strings.Join(it.Branches, ",")
			if branches == "" {
				branches = "(any)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", it.Name, it.Source, branches, it.Steps)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	rootCmd.AddCommand(listCmd)
}
