package analyses

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// groupCSVColumns are the scalar columns of the groups CSV outputs.
var groupCSVColumns = []string{"id", "name", "classification", "parent_id", "founding_date", "dissolution_date"}

type groupCSVRow schema.Organization

func (g groupCSVRow) CSVRow() ([]string, error) {
	return []string{g.ID, g.Name, g.Classification, g.ParentID, g.FoundingDate, g.DissolutionDate}, nil
}

// RunCurrentGroups writes the parliamentary clubs of the current term to
// current-groups/outputs.
func RunCurrentGroups(ctx context.Context, standardDir, analysesDir string) error {
	return runGroups(ctx, standardDir,
		filepath.Join(analysesDir, "current-groups", "outputs", "current_groups.json"),
		filepath.Join(analysesDir, "current-groups", "outputs", "current_groups.csv"))
}

// RunAllGroups writes every club of the term, including clubs dissolved
// during it, to all-groups/outputs.
func RunAllGroups(ctx context.Context, standardDir, analysesDir string) error {
	return runGroups(ctx, standardDir,
		filepath.Join(analysesDir, "all-groups", "outputs", "all_groups.json"),
		filepath.Join(analysesDir, "all-groups", "outputs", "all_groups.csv"))
}

// runGroups selects the clubs from the org hierarchy rather than from the
// deputy register, so candidate list orgs never slip in. Names lose the club
// prefix and the classification becomes "group".
func runGroups(ctx context.Context, standardDir, jsonPath, csvPath string) error {
	orgs, err := readOrganizations(standardDir)
	if err != nil {
		return err
	}
	termOrg, err := findCurrentTerm(orgs)
	if err != nil {
		return err
	}

	var groups []schema.Organization
	for _, org := range orgs {
		if org.ParentID != termOrg.ID || !strings.Contains(org.Name, clubNameMark) {
			continue
		}
		org.Name = stripClubPrefix(org.Name)
		org.Classification = "group"
		if org.Identifiers == nil {
			org.Identifiers = []schema.Identifier{}
		}
		if org.Sources == nil {
			org.Sources = []schema.Source{}
		}
		groups = append(groups, org)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID < groups[j].ID
	})

	if err := schema.WriteJSON(jsonPath, groups); err != nil {
		return err
	}

	rows := make([]groupCSVRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, groupCSVRow(g))
	}
	if err := schema.WriteCSV(csvPath, groupCSVColumns, rows); err != nil {
		return err
	}

	logging.Ctx(ctx).Info().Int("rows", len(groups)).Str("path", jsonPath).Msg("Wrote groups")
	return nil
}
