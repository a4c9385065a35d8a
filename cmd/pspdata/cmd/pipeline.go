package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/legislature-data/cz-psp-pipeline/internal/pipeline"
	"github.com/legislature-data/cz-psp-pipeline/internal/sources/psp"
	"github.com/legislature-data/cz-psp-pipeline/internal/standardize"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
)

// pipelineFlags mirror pipeline.Config on the command line. Every stage
// command shares them so a partial run sees the same layout as a full one.
type pipelineFlags struct {
	workDir     string
	dataDir     string
	analysesDir string
	schemas     string
	membersURL  string
	votesURL    string
	minID       int
	provider    string
	prefix      string
}

func (f *pipelineFlags) add(cmd *cobra.Command) {
	f.register(cmd.Flags())
}

// addPersistent registers the flags on the persistent set so subcommands
// inherit them.
func (f *pipelineFlags) addPersistent(cmd *cobra.Command) {
	f.register(cmd.PersistentFlags())
}

func (f *pipelineFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.workDir, "work-dir", "work", "Scratch directory for raw and standardized data")
	fs.StringVar(&f.dataDir, "data-dir", "data", "Committed pointer file directory")
	fs.StringVar(&f.analysesDir, "analyses-dir", "analyses", "Analysis output directory")
	fs.StringVar(&f.schemas, "schemas", "config/schemas.yml", "Table schema configuration file")
	fs.StringVar(&f.membersURL, "members-url", psp.DefaultMembersURL, "Members archive URL")
	fs.StringVar(&f.votesURL, "votes-url", psp.DefaultVotesURL, "Votes archive URL")
	fs.IntVar(&f.minID, "min-id", standardize.DefaultObjectionMinID, "Lowest vote ID of the current term")
	fs.StringVar(&f.provider, "provider", "b2", "Object storage provider: b2 or s3")
	fs.StringVar(&f.prefix, "prefix", constants.DefaultRemotePrefix, "Remote object key prefix")
}

func (f *pipelineFlags) config() pipeline.Config {
	return pipeline.Config{
		WorkDir:        f.workDir,
		DataDir:        f.dataDir,
		AnalysesDir:    f.analysesDir,
		SchemasConfig:  f.schemas,
		MembersURL:     f.membersURL,
		VotesURL:       f.votesURL,
		ObjectionMinID: f.minID,
		Provider:       f.provider,
		RemotePrefix:   f.prefix,
	}
}

// runStage builds the pipeline and runs one stage function with the overall
// timeout applied.
func runStage(cmd *cobra.Command, flags *pipelineFlags, fn func(context.Context, *pipeline.Pipeline) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), constants.PipelineTimeout)
	defer cancel()

	p, err := pipeline.New(ctx, flags.config())
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	return fn(ctx, p)
}

func newPipelineCmd() *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the full pipeline: download, standardize, validate, analyze, publish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.Run(ctx)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newPipelineCmd())
}
