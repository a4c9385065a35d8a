package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/legislature-data/cz-psp-pipeline/internal/pipeline"
)

func newDownloadCmd() *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and unpack the PSP open data archives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.Download(ctx)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func newStandardizeCmd() *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "standardize",
		Short: "Convert the raw UNL tables into the standard tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.Standardize(ctx)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func newValidateCmd() *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the standardized tables and analysis outputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				if err := p.Validate(ctx); err != nil {
					return err
				}
				return p.ValidateAnalyses(ctx)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func newPublishCmd() *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish dataset snapshots and update the latest.json pointers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.PublishSnapshots(ctx)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newStandardizeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newPublishCmd())
}
