package standardize

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/unl"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// VotesSourceURL is the zip the votes tables come from, recorded in sources.
const VotesSourceURL = "https://www.psp.cz/eknih/cdrom/opendata/hl-2025ps.zip"

// Column counts of the hl-* UNL tables.
const (
	hlasovaniCols = 18
	hlasCols      = 4
)

// MapOption translates a PSP vote code to the standard option vocabulary.
func MapOption(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "A":
		return schema.OptionYes
	case "B", "N":
		return schema.OptionNo
	case "C", "K":
		return schema.OptionAbstain
	case "F":
		return schema.OptionNotVoting
	case "@":
		return schema.OptionAbsent
	case "M":
		return schema.OptionExcused
	case "W":
		return schema.OptionNotMember
	default:
		return schema.OptionUnknown
	}
}

// VotesOutputs names the files the vote standardization produces. CSV/JSON
// are the local working copies; Parquet files feed the publish step.
type VotesOutputs struct {
	VotesCSV          string
	VoteEventsJSON    string
	MotionsJSON       string
	VotesParquet      string
	VoteEventsParquet string
	MotionsParquet    string
}

// DefaultVotesOutputs lays the outputs out under standardDir and publishDir
// the way the pipeline expects them.
func DefaultVotesOutputs(standardDir, publishDir string) VotesOutputs {
	return VotesOutputs{
		VotesCSV:          filepath.Join(standardDir, "votes.csv"),
		VoteEventsJSON:    filepath.Join(standardDir, "vote_events.json"),
		MotionsJSON:       filepath.Join(standardDir, "motions.json"),
		VotesParquet:      filepath.Join(publishDir, "votes.parquet"),
		VoteEventsParquet: filepath.Join(publishDir, "vote_events.parquet"),
		MotionsParquet:    filepath.Join(publishDir, "motions.parquet"),
	}
}

// VotesStats summarizes a vote standardization run.
type VotesStats struct {
	VoteEvents int
	Motions    int
	Votes      int
	VoidVotes  int
}

// Votes standardizes the hl archive in rawDir: the summary table becomes
// vote-events and motions (void votes excluded), and the per-member tables
// stream into the votes CSV and Parquet outputs. membersRawDir must hold
// poslanec.unl for the deputy → person mapping.
func Votes(ctx context.Context, rawDir, membersRawDir string, out VotesOutputs) (*VotesStats, error) {
	log := logging.Ctx(ctx)

	voidIDs, err := readVoidIDs(rawDir)
	if err != nil {
		return nil, err
	}

	summaryPath, err := findSummaryFile(rawDir)
	if err != nil {
		return nil, err
	}
	summary, err := unl.ReadFile(summaryPath, hlasovaniCols)
	if err != nil {
		return nil, err
	}

	// hl summary columns:
	// 0 id_hlasovani | 1 id_organ | 2 schuze | 3 cislo | 4 bod |
	// 5 datum | 6 cas | ... | 14 vysledek | 15 nazev_dlouhy | ...
	var events []schema.VoteEvent
	var motions []schema.Motion
	validIDs := make(map[string]bool, len(summary))
	for _, r := range summary {
		hid := r[0]
		if voidIDs[hid] {
			continue
		}

		extras := schema.VoteEventExtras{
			SittingNumber:    nullable(r[2]),
			VotingNumber:     nullable(r[3]),
			AgendaItemNumber: nullable(r[4]),
		}
		sources := []schema.Source{{
			URL:  VotesSourceURL,
			Note: filepath.Base(summaryPath) + " id_hlasovani=" + hid,
		}}

		var eventResult, motionResult *string
		switch strings.ToUpper(strings.TrimSpace(r[14])) {
		case "A":
			eventResult = ptr(schema.ResultPass)
			motionResult = ptr(schema.ResultPassed)
		case "R":
			eventResult = ptr(schema.ResultFail)
			motionResult = ptr(schema.ResultFailed)
		}

		events = append(events, schema.VoteEvent{
			ID:             schema.VoteEventID(hid),
			Identifier:     hid,
			MotionID:       schema.MotionID(hid),
			OrganizationID: schema.OrgID(r[1]),
			Extras:         extras,
			StartDate:      nullable(ParseDateTime(r[5], r[6])),
			Result:         eventResult,
			Sources:        sources,
		})
		motions = append(motions, schema.Motion{
			ID:             schema.MotionID(hid),
			Identifier:     hid,
			OrganizationID: schema.OrgID(r[1]),
			Extras:         extras,
			Date:           nullable(ParseDate(r[5])),
			Text:           nullable(strings.TrimSpace(r[15])),
			Result:         motionResult,
			Sources:        sources,
		})
		validIDs[hid] = true
	}

	sortByIdentifier(events, func(e schema.VoteEvent) string { return e.Identifier })
	sortByIdentifier(motions, func(m schema.Motion) string { return m.Identifier })

	if err := schema.WriteJSON(out.VoteEventsJSON, events); err != nil {
		return nil, err
	}
	log.Info().Int("rows", len(events)).Str("path", out.VoteEventsJSON).Msg("Wrote vote events")
	if err := schema.WriteJSON(out.MotionsJSON, motions); err != nil {
		return nil, err
	}
	log.Info().Int("rows", len(motions)).Str("path", out.MotionsJSON).Msg("Wrote motions")

	if err := schema.WriteParquet(out.VoteEventsParquet, events); err != nil {
		return nil, err
	}
	if err := schema.WriteParquet(out.MotionsParquet, motions); err != nil {
		return nil, err
	}

	deputyToPerson, err := DeputyToPersonMap(membersRawDir)
	if err != nil {
		return nil, err
	}

	total, err := streamVotes(ctx, rawDir, validIDs, deputyToPerson, out)
	if err != nil {
		return nil, err
	}

	return &VotesStats{
		VoteEvents: len(events),
		Motions:    len(motions),
		Votes:      total,
		VoidVotes:  len(voidIDs),
	}, nil
}

// streamVotes walks the per-member vote files and writes the votes table to
// CSV and Parquet without buffering the whole table.
func streamVotes(ctx context.Context, rawDir string, validIDs map[string]bool, deputyToPerson map[string]string, out VotesOutputs) (int, error) {
	files, err := filepath.Glob(filepath.Join(rawDir, "hl*h*.unl"))
	if err != nil {
		return 0, errors.WrapIO("read", rawDir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return 0, errors.NewNotFoundError("per-member vote files", filepath.Join(rawDir, "hl*h*.unl"))
	}

	if err := os.MkdirAll(filepath.Dir(out.VotesCSV), constants.DirPermissions); err != nil {
		return 0, errors.WrapIO("create", filepath.Dir(out.VotesCSV), err)
	}
	csvFile, err := os.Create(out.VotesCSV)
	if err != nil {
		return 0, errors.WrapIO("create", out.VotesCSV, err)
	}
	defer csvFile.Close() //nolint:errcheck
	csvWriter := csv.NewWriter(csvFile)
	if err := csvWriter.Write(schema.VoteColumns); err != nil {
		return 0, errors.WrapIO("write", out.VotesCSV, err)
	}

	appender, err := schema.NewParquetAppender[schema.Vote](out.VotesParquet)
	if err != nil {
		return 0, err
	}

	total := 0
	batch := make([]schema.Vote, 0, constants.VoteBatchSize)
	for _, file := range files {
		scanner, closer, err := unl.NewFileScanner(file, hlasCols)
		if err != nil {
			return 0, err
		}
		// hl per-member columns: 0 id_poslanec | 1 id_hlasovani | 2 vysledek | 3 unused
		for scanner.Scan() {
			r := scanner.Row()
			if !validIDs[r[1]] {
				continue
			}
			person, ok := deputyToPerson[r[0]]
			if !ok {
				continue
			}
			vote := schema.Vote{
				VoteEventID: schema.VoteEventID(r[1]),
				VoterID:     schema.PersonID(person),
				Option:      MapOption(r[2]),
			}
			record, _ := vote.CSVRow()
			if err := csvWriter.Write(record); err != nil {
				_ = closer.Close()
				return 0, errors.WrapIO("write", out.VotesCSV, err)
			}
			batch = append(batch, vote)
			total++
			if len(batch) >= constants.VoteBatchSize {
				if err := appender.Append(batch); err != nil {
					_ = closer.Close()
					return 0, err
				}
				batch = batch[:0]
			}
		}
		_ = closer.Close()
		if err := scanner.Err(); err != nil {
			return 0, err
		}
	}

	if err := appender.Append(batch); err != nil {
		return 0, err
	}
	if err := appender.Close(); err != nil {
		return 0, err
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return 0, errors.WrapIO("write", out.VotesCSV, err)
	}
	if err := csvFile.Close(); err != nil {
		return 0, errors.WrapIO("close", out.VotesCSV, err)
	}

	logging.Ctx(ctx).Info().Int("rows", total).Str("path", out.VotesCSV).Msg("Wrote votes")
	return total, nil
}

// readVoidIDs loads zmatecne.unl when present. An absent or empty file just
// means the term has no void votes yet.
func readVoidIDs(rawDir string) (map[string]bool, error) {
	path := filepath.Join(rawDir, "zmatecne.unl")
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return map[string]bool{}, nil
	}
	rows, err := unl.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		if len(r) > 0 && r[0] != "" {
			ids[r[0]] = true
		}
	}
	return ids, nil
}

// findSummaryFile locates the hl summary table (hl2025s.unl and alike).
func findSummaryFile(rawDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(rawDir, "hl*s.unl"))
	if err != nil {
		return "", errors.WrapIO("read", rawDir, err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", errors.NewNotFoundError("vote summary file", filepath.Join(rawDir, "hl*s.unl"))
	}
	return matches[0], nil
}

func sortByIdentifier[T any](items []T, identifier func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		a, _ := strconv.Atoi(identifier(items[i]))
		b, _ := strconv.Atoi(identifier(items[j]))
		return a < b
	})
}

func ptr(s string) *string { return &s }

// nullable returns nil for empty strings so JSON carries explicit nulls.
func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
