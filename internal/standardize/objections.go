package standardize

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/unl"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// DefaultObjectionMinID is the lower bound for vote IDs considered part of
// the current parliamentary term. zmatecne.unl is cumulative across all
// terms; the 2025ps term starts around ID 85000.
const DefaultObjectionMinID = 85000

// Objections builds vote-event-objection records from the void vote list.
// All PSP void votes are vote corrections with outcome invalidated: an MP
// stated they voted differently from their intention and the body agreed to
// repeat the vote. Dates come from the summary table, which however only
// lists valid votes, so most objections carry no date. The raised_by and
// decision/repeat references the standard allows are absent because PSP does
// not publish the hl_zposlanec and hl_check tables.
func Objections(ctx context.Context, rawDir string, minID int) ([]schema.VoteEventObjection, error) {
	log := logging.Ctx(ctx)

	voidIDs, err := readVoidIDs(rawDir)
	if err != nil {
		return nil, err
	}
	var currentIDs []int
	for id := range voidIDs {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		if n >= minID {
			currentIDs = append(currentIDs, n)
		}
	}
	sort.Ints(currentIDs)
	log.Info().
		Int("total_void", len(voidIDs)).
		Int("current_term", len(currentIDs)).
		Int("min_id", minID).
		Msg("Filtered void votes")

	summaryByID := make(map[string][]string)
	if summaryPath, err := findSummaryFile(rawDir); err == nil {
		rows, err := unl.ReadFile(summaryPath, hlasovaniCols)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			summaryByID[r[0]] = r
		}
	}

	objections := make([]schema.VoteEventObjection, 0, len(currentIDs))
	for _, id := range currentIDs {
		hid := strconv.Itoa(id)
		obj := schema.VoteEventObjection{
			ID:          schema.ObjectionID(hid),
			VoteEventID: schema.VoteEventID(hid),
			Type:        "vote_correction",
			Outcome:     "invalidated",
			Sources: []schema.Source{{
				URL:  VotesSourceURL,
				Note: "zmatecne.unl id_hlasovani=" + hid,
			}},
		}
		if row, ok := summaryByID[hid]; ok {
			obj.Date = ParseDateTime(row[5], row[6])
		}
		objections = append(objections, obj)
	}
	return objections, nil
}

// WriteObjections standardizes objections and writes them as JSON.
func WriteObjections(ctx context.Context, rawDir, outPath string, minID int) ([]schema.VoteEventObjection, error) {
	objections, err := Objections(ctx, rawDir, minID)
	if err != nil {
		return nil, err
	}
	if err := schema.WriteJSON(outPath, objections); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Int("rows", len(objections)).
		Str("path", filepath.Clean(outPath)).
		Msg("Wrote vote event objections")
	return objections, nil
}
