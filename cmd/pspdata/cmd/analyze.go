package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/legislature-data/cz-psp-pipeline/internal/analyses"
	"github.com/legislature-data/cz-psp-pipeline/internal/pipeline"
	"github.com/legislature-data/cz-psp-pipeline/internal/snapshot"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// builtinAnalyses run in-process; everything else is delegated to an
// external executable. current-mps is dispatched on its own, the rest run
// together as one batch.
var builtinAnalyses = map[string]bool{
	"current-term":    true,
	"current-groups":  true,
	"all-groups":      true,
	"current-members": true,
	"all-members":     true,
	"current-mps":     true,
}

func newAnalyzeCmd() *cobra.Command {
	flags := &pipelineFlags{}
	var (
		script            string
		flourishScript    string
		definition        string
		objections        string
		interpreter       string
		useCurrentMembers bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [name]",
		Short: "Run the analyses",
		Long: `Run the analyses. Without a name the built-in batch runs. With the
name of a built-in analysis only that analysis runs; current-mps runs only
when named. The external analyses (attendance, vote-corrections, govity)
require --script and --flourish-script pointing at the delegated
executables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runStage(cmd, flags, func(ctx context.Context, p *pipeline.Pipeline) error {
				if name == "current-mps" {
					return p.AnalyzeCurrentMPs(ctx)
				}
				if name == "" || builtinAnalyses[name] {
					return p.Analyze(ctx)
				}
				return runExternal(ctx, flags, externalRun{
					name:              name,
					script:            script,
					flourishScript:    flourishScript,
					definition:        definition,
					objections:        objections,
					interpreter:       interpreter,
					useCurrentMembers: useCurrentMembers,
				})
			})
		},
	}
	flags.add(cmd)
	cmd.Flags().StringVar(&script, "script", "", "Path to the external analysis executable")
	cmd.Flags().StringVar(&flourishScript, "flourish-script", "", "Path to the Flourish table executable")
	cmd.Flags().StringVar(&definition, "definition", "", "Definition JSON passed to the analysis")
	cmd.Flags().StringVar(&objections, "objections", "", "Objections JSON passed to the analysis (default: the standardized objections)")
	cmd.Flags().StringVar(&interpreter, "interpreter", "python3", "Interpreter for the external executables")
	cmd.Flags().BoolVar(&useCurrentMembers, "use-current-members", false, "Restrict the analysis to sitting MPs")
	return cmd
}

type externalRun struct {
	name              string
	script            string
	flourishScript    string
	definition        string
	objections        string
	interpreter       string
	useCurrentMembers bool
}

func runExternal(ctx context.Context, flags *pipelineFlags, run externalRun) error {
	if run.script == "" {
		return errors.NewValidationError("script", run.name, "--script is required for external analyses")
	}
	if run.flourishScript == "" {
		return errors.NewValidationError("flourish-script", run.name, "--flourish-script is required for external analyses")
	}

	standardDir := filepath.Join(flags.workDir, "standard")
	runner := &analyses.Runner{
		Downloader:  snapshot.NewDownloader(),
		Interpreter: run.interpreter,
		StandardDir: standardDir,
		AnalysesDir: flags.analysesDir,
		DataDir:     flags.dataDir,
		CacheDir:    filepath.Join(flags.workDir, "cache"),
	}

	analysis := analyses.ExternalAnalysis{
		Name:              run.name,
		Script:            run.script,
		FlourishScript:    run.flourishScript,
		Definition:        run.definition,
		Objections:        run.objections,
		UseCurrentMembers: run.useCurrentMembers,
	}
	switch run.name {
	case "attendance":
		analysis.FilterVotes = true
		analysis.RewriteGroupNames = true
	case "vote-corrections":
		if analysis.Objections == "" {
			analysis.Objections = filepath.Join(standardDir, "vote_event_objections.json")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.AnalysisTimeout)
	defer cancel()
	return runner.Run(ctx, analysis)
}

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
}
