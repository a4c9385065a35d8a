package analyses

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/unl"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// Term is the current-term analysis output.
type Term struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Since       string              `json:"since"`
	Until       *string             `json:"until"`
	UntilLatest string              `json:"until_latest"`
	Identifiers []schema.Identifier `json:"identifiers"`
}

const organyColumns = 11

// RunCurrentTerm identifies the running parliamentary term and writes
// current-term/outputs/current_term.json. The PSP term number comes from the
// org abbreviation in the raw organy.unl.
func RunCurrentTerm(ctx context.Context, standardDir, rawMembersDir, analysesDir string) (*Term, error) {
	orgs, err := readOrganizations(standardDir)
	if err != nil {
		return nil, err
	}
	termOrg, err := findCurrentTerm(orgs)
	if err != nil {
		return nil, err
	}
	if termOrg.FoundingDate == "" {
		return nil, errors.NewValidationError("current_term.since", termOrg.ID, "current term missing founding date")
	}

	startYear, _, _ := strings.Cut(termOrg.FoundingDate, "-")
	termNumber, err := termNumberFromOrgany(rawMembersDir, strings.TrimPrefix(termOrg.ID, schema.OrgIDPrefix))
	if err != nil {
		return nil, err
	}

	untilLatest, err := addYears(termOrg.FoundingDate, 4)
	if err != nil {
		return nil, err
	}

	term := &Term{
		ID:          termOrg.ID,
		Name:        termOrg.Name + " " + startYear + " -",
		Since:       termOrg.FoundingDate,
		UntilLatest: untilLatest,
		Identifiers: []schema.Identifier{{Scheme: "psp", Identifier: termNumber}},
	}
	if termOrg.DissolutionDate != "" {
		term.Until = &termOrg.DissolutionDate
	}

	outPath := filepath.Join(analysesDir, "current-term", "outputs", "current_term.json")
	if err := schema.WriteJSON(outPath, term); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("path", outPath).Str("term", term.Name).Msg("Wrote current term")
	return term, nil
}

// termNumberFromOrgany reads the raw organy.unl and extracts the numeric
// term from the PSP<n> abbreviation of the term org.
func termNumberFromOrgany(rawMembersDir, rawOrgID string) (string, error) {
	path := filepath.Join(rawMembersDir, "organy.unl")
	rows, err := unl.ReadFile(path, organyColumns)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r[0] != rawOrgID {
			continue
		}
		abbr := strings.TrimSpace(r[3])
		number := strings.TrimPrefix(abbr, "PSP")
		if number == abbr || number == "" {
			return "", errors.NewValidationError("abbreviation", abbr, "term org abbreviation is not PSP<n>")
		}
		if _, err := strconv.Atoi(number); err != nil {
			return "", errors.NewValidationError("abbreviation", abbr, "term org abbreviation is not PSP<n>")
		}
		return number, nil
	}
	return "", errors.NewNotFoundError("term organization", rawOrgID)
}

// addYears shifts an ISO date by whole years, mapping Feb 29 to Feb 28 when
// the target year is not a leap year.
func addYears(iso string, years int) (string, error) {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return "", errors.WrapParse("date", iso, err)
	}
	yyyy, mm, dd := t.Date()
	if mm == time.February && dd == 29 {
		shifted := time.Date(yyyy+years, time.February, 29, 0, 0, 0, 0, time.UTC)
		if shifted.Month() != time.February {
			return fmt.Sprintf("%04d-02-28", yyyy+years), nil
		}
		return shifted.Format("2006-01-02"), nil
	}
	return time.Date(yyyy+years, mm, dd, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), nil
}
