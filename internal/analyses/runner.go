package analyses

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/snapshot"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// ExternalAnalysis configures one delegated analysis run. The script and the
// Flourish table script live outside this repository and must be supplied by
// the caller.
type ExternalAnalysis struct {
	Name           string // output directory name, e.g. "attendance"
	Script         string
	FlourishScript string
	Definition     string // definition JSON passed through, empty to omit
	Objections     string // objections JSON passed through, empty to omit

	// UseCurrentMembers reduces the persons file to sitting MPs first.
	UseCurrentMembers bool

	// FilterVotes reduces the votes CSV to the requested persons. The
	// attendance script validates every vote row, so this keeps its
	// runtime reasonable.
	FilterVotes bool

	// RewriteGroupNames shortens club names in the output JSON.
	RewriteGroupNames bool
}

// Runner feeds the external analyses: it ensures the standardized inputs
// exist locally (falling back to the published snapshots), filters them, and
// invokes the supplied executables.
type Runner struct {
	Downloader  *snapshot.Downloader
	Interpreter string // e.g. "python3"

	StandardDir string
	AnalysesDir string
	DataDir     string // pointer files, data/<dataset>/latest.json
	CacheDir    string // downloaded snapshots and filtered inputs
}

// groupShortNames maps the long club names to the forms the published
// visualizations use.
var groupShortNames = map[string]string{
	"ANO 2011":                   "ANO",
	"Starostové a nezávislí":     "STAN",
	"Motoristé sobě":             "Motoristé",
	"Svoboda a přímá demokracie": "SPD",
}

// Run executes one external analysis end to end.
func (r *Runner) Run(ctx context.Context, a ExternalAnalysis) error {
	log := logging.Ctx(ctx)

	if _, err := os.Stat(a.Script); err != nil {
		return errors.NewNotFoundError("analysis script", a.Script)
	}
	if _, err := os.Stat(a.FlourishScript); err != nil {
		return errors.NewNotFoundError("flourish script", a.FlourishScript)
	}

	votesCSV := filepath.Join(r.StandardDir, "votes.csv")
	voteEventsJSON := filepath.Join(r.StandardDir, "vote_events.json")
	if err := r.EnsureVotesCSV(ctx, votesCSV); err != nil {
		return err
	}
	if err := r.EnsureVoteEventsJSON(ctx, voteEventsJSON); err != nil {
		return err
	}

	persons := filepath.Join(r.AnalysesDir, "all-members", "outputs", "all_members.csv")
	if a.UseCurrentMembers {
		filtered := filepath.Join(r.CacheDir, "persons.current.csv")
		currentMembers := filepath.Join(r.AnalysesDir, "current-members", "outputs", "current_members.csv")
		if err := filterCSVByIDs(persons, currentMembers, filtered); err != nil {
			return err
		}
		persons = filtered
	}

	votes := votesCSV
	if a.FilterVotes {
		filtered := filepath.Join(r.CacheDir, "votes.filtered.csv")
		if err := filterVotesForPersons(votesCSV, persons, filtered); err != nil {
			return err
		}
		votes = filtered
	}

	outputJSON := filepath.Join(r.AnalysesDir, a.Name, "outputs", analysisFileName(a.Name)+".json")
	if err := os.MkdirAll(filepath.Dir(outputJSON), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(outputJSON), err)
	}

	args := []string{a.Script}
	if a.Definition != "" {
		args = append(args, "--definition", a.Definition)
	}
	if a.Objections != "" {
		args = append(args, "--objections", a.Objections)
	}
	args = append(args,
		"--votes", votes,
		"--vote_events", voteEventsJSON,
		"--persons", persons,
		"--output", outputJSON,
	)
	if err := r.execute(ctx, args); err != nil {
		return err
	}

	if a.RewriteGroupNames {
		if err := rewriteGroupNames(outputJSON); err != nil {
			return err
		}
	}

	flourishCSV := filepath.Join(r.AnalysesDir, a.Name, "outputs", analysisFileName(a.Name)+"_flourish_table.csv")
	if err := r.execute(ctx, []string{a.FlourishScript, "--input", outputJSON, "--output", flourishCSV}); err != nil {
		return err
	}

	log.Info().Str("analysis", a.Name).Str("json", outputJSON).Str("csv", flourishCSV).Msg("Analysis finished")
	return nil
}

// analysisFileName turns a directory name like "vote-corrections" into the
// file stem "vote_corrections".
func analysisFileName(name string) string {
	out := []rune(name)
	for i, c := range out {
		if c == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

func (r *Runner) execute(ctx context.Context, args []string) error {
	interpreter := r.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logging.Ctx(ctx).Info().Strs("args", args).Str("interpreter", interpreter).Msg("Running analysis script")
	if err := cmd.Run(); err != nil {
		return errors.NewProcessError("analysis", interpreter+" "+args[0], "", err)
	}
	return nil
}

// EnsureVotesCSV makes sure the votes table exists locally, converting the
// published Parquet snapshot when it does not.
func (r *Runner) EnsureVotesCSV(ctx context.Context, votesCSV string) error {
	if fileNonEmpty(votesCSV) {
		return nil
	}
	parquetPath := filepath.Join(r.CacheDir, "votes.latest.parquet")
	pointer := filepath.Join(r.DataDir, "votes", "latest.json")
	if err := r.Downloader.Latest(ctx, pointer, parquetPath); err != nil {
		return err
	}
	votes, err := schema.ReadParquet[schema.Vote](parquetPath)
	if err != nil {
		return err
	}
	return schema.WriteCSV(votesCSV, schema.VoteColumns, votes)
}

// EnsureVoteEventsJSON mirrors EnsureVotesCSV for the vote events table.
func (r *Runner) EnsureVoteEventsJSON(ctx context.Context, voteEventsJSON string) error {
	if fileNonEmpty(voteEventsJSON) {
		return nil
	}
	parquetPath := filepath.Join(r.CacheDir, "vote_events.latest.parquet")
	pointer := filepath.Join(r.DataDir, "vote-events", "latest.json")
	if err := r.Downloader.Latest(ctx, pointer, parquetPath); err != nil {
		return err
	}
	events, err := schema.ReadParquet[schema.VoteEvent](parquetPath)
	if err != nil {
		return err
	}
	return schema.WriteJSON(voteEventsJSON, events)
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// filterCSVByIDs keeps the rows of inCSV whose id appears in the id column
// of filterCSV.
func filterCSVByIDs(inCSV, filterCSV, outCSV string) error {
	ids, err := readIDColumn(filterCSV, "id")
	if err != nil {
		return err
	}
	return filterCSVRows(inCSV, outCSV, "id", ids)
}

// filterVotesForPersons keeps the vote rows whose voter appears in the
// persons file.
func filterVotesForPersons(votesIn, personsCSV, votesOut string) error {
	ids, err := readIDColumn(personsCSV, "id")
	if err != nil {
		return err
	}
	return filterCSVRows(votesIn, votesOut, "voter_id", ids)
}

func readIDColumn(path, column string) (map[string]bool, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		if id := r[column]; id != "" {
			ids[id] = true
		}
	}
	if len(ids) == 0 {
		return nil, errors.NewValidationError(column, path, "no ids found")
	}
	return ids, nil
}

func filterCSVRows(inPath, outPath, column string, keep map[string]bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return errors.WrapIO("read", inPath, err)
	}
	defer in.Close() //nolint:errcheck

	reader := csv.NewReader(in)
	header, err := reader.Read()
	if err != nil {
		return errors.WrapParse("csv", inPath, err)
	}
	col := -1
	for i, c := range header {
		if c == column {
			col = i
			break
		}
	}
	if col < 0 {
		return errors.NewValidationError(column, inPath, "missing column")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(outPath), err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return errors.WrapIO("create", outPath, err)
	}
	defer out.Close() //nolint:errcheck

	writer := csv.NewWriter(out)
	if err := writer.Write(header); err != nil {
		return errors.WrapIO("write", outPath, err)
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WrapParse("csv", inPath, err)
		}
		if col < len(record) && keep[record[col]] {
			if err := writer.Write(record); err != nil {
				return errors.WrapIO("write", outPath, err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.WrapIO("write", outPath, err)
	}
	return errors.WrapIO("close", outPath, out.Close())
}

// rewriteGroupNames shortens the long club names inside the organizations of
// each output row.
func rewriteGroupNames(jsonPath string) error {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return errors.WrapIO("read", jsonPath, err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.WrapParse("json", jsonPath, err)
	}

	changed := false
	for _, row := range rows {
		orgs, ok := row["organizations"].([]any)
		if !ok {
			continue
		}
		for _, raw := range orgs {
			org, ok := raw.(map[string]any)
			if !ok || org["classification"] != "group" {
				continue
			}
			if name, ok := org["name"].(string); ok {
				if short, found := groupShortNames[name]; found {
					org["name"] = short
					changed = true
				}
			}
		}
	}
	if !changed {
		return nil
	}
	return schema.WriteJSON(jsonPath, rows)
}
