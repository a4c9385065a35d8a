package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/legislature-data/cz-psp-pipeline/internal/pipeline"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

func newRunsCmd() *cobra.Command {
	flags := &pipelineFlags{}
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the local run and snapshot history",
	}
	flags.addPersistent(cmd)
	cmd.PersistentFlags().IntVar(&limit, "limit", 20, "Maximum number of rows")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded pipeline runs, newest first",
		RunE: func(c *cobra.Command, _ []string) error {
			return runStage(c, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				reg := p.Registry()
				if reg == nil {
					return errors.NewNotFoundError("registry", flags.workDir)
				}
				runs, err := reg.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tSTARTED\tDURATION\tDETAIL")
				for _, run := range runs {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						run.ID, run.Stage, run.Status,
						run.StartedAt.Format(time.RFC3339),
						run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
						run.Detail)
				}
				return w.Flush()
			})
		},
	}

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots [dataset]",
		Short: "List recorded snapshot uploads, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			dataset := ""
			if len(args) == 1 {
				dataset = args[0]
			}
			return runStage(c, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				reg := p.Registry()
				if reg == nil {
					return errors.NewNotFoundError("registry", flags.workDir)
				}
				snapshots, err := reg.ListSnapshots(ctx, dataset, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tDATASET\tKEY\tSIZE\tUPLOADED")
				for _, s := range snapshots {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
						s.ID, s.Dataset, s.Key, s.Size,
						s.UploadedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(snapshotsCmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunsCmd())
}
