// Package analyses derives the committed analysis outputs from the
// standardized tables plus the raw deputy register. The small outputs
// (terms, groups, members) are computed here; the heavyweight ones
// (attendance, vote corrections, govity) are delegated to externally
// supplied analysis scripts that this package feeds and post-processes.
package analyses

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/unl"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

const (
	parliamentNameMark = "Poslanecká sněmovna"
	clubNameMark       = "Poslanecký klub"
)

var clubPrefixRe = regexp.MustCompile(`^Poslanecký klub\s+`)

// RunAll produces every committed analysis output, in the order the
// downstream validators expect them.
func RunAll(ctx context.Context, standardDir, rawMembersDir, analysesDir string) error {
	if err := RunCurrentMembers(ctx, standardDir, rawMembersDir, analysesDir); err != nil {
		return err
	}
	if err := RunCurrentGroups(ctx, standardDir, analysesDir); err != nil {
		return err
	}
	if _, err := RunCurrentTerm(ctx, standardDir, rawMembersDir, analysesDir); err != nil {
		return err
	}
	if err := RunAllGroups(ctx, standardDir, analysesDir); err != nil {
		return err
	}
	return RunAllMembers(ctx, standardDir, rawMembersDir, analysesDir)
}

// readTable loads a standardized CSV into rows keyed by header column.
func readTable(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WrapParse("csv", path, err)
	}
	if len(records) == 0 {
		return nil, errors.NewValidationError(filepath.Base(path), nil, "empty table")
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readOrganizations loads organizations.csv back into typed records,
// decoding the JSON cells.
func readOrganizations(standardDir string) ([]schema.Organization, error) {
	path := filepath.Join(standardDir, "organizations.csv")
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	orgs := make([]schema.Organization, 0, len(rows))
	for _, r := range rows {
		org := schema.Organization{
			ID:              r["id"],
			Name:            r["name"],
			Classification:  r["classification"],
			ParentID:        r["parent_id"],
			FoundingDate:    r["founding_date"],
			DissolutionDate: r["dissolution_date"],
		}
		if err := decodeCell(r["identifiers"], &org.Identifiers); err != nil {
			return nil, errors.WrapParse("json", path, err)
		}
		if err := decodeCell(r["sources"], &org.Sources); err != nil {
			return nil, errors.WrapParse("json", path, err)
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// readPersons loads persons.csv back into typed records.
func readPersons(standardDir string) ([]schema.Person, error) {
	path := filepath.Join(standardDir, "persons.csv")
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	persons := make([]schema.Person, 0, len(rows))
	for _, r := range rows {
		p := schema.Person{
			ID:         r["id"],
			Name:       r["name"],
			GivenName:  r["given_name"],
			FamilyName: r["family_name"],
			BirthDate:  r["birth_date"],
			DeathDate:  r["death_date"],
			Gender:     r["gender"],
		}
		if err := decodeCell(r["identifiers"], &p.Identifiers); err != nil {
			return nil, errors.WrapParse("json", path, err)
		}
		if err := decodeCell(r["sources"], &p.Sources); err != nil {
			return nil, errors.WrapParse("json", path, err)
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// readMemberships loads memberships.csv. Sources stay encoded; the analyses
// never look inside them.
func readMemberships(standardDir string) ([]schema.Membership, error) {
	rows, err := readTable(filepath.Join(standardDir, "memberships.csv"))
	if err != nil {
		return nil, err
	}
	memberships := make([]schema.Membership, 0, len(rows))
	for _, r := range rows {
		memberships = append(memberships, schema.Membership{
			ID:             r["id"],
			PersonID:       r["person_id"],
			OrganizationID: r["organization_id"],
			StartDate:      r["start_date"],
			EndDate:        r["end_date"],
		})
	}
	return memberships, nil
}

func decodeCell(cell string, target any) error {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	return json.Unmarshal([]byte(cell), target)
}

// findCurrentTerm locates the single undissolved chamber organization.
func findCurrentTerm(orgs []schema.Organization) (schema.Organization, error) {
	var matches []schema.Organization
	for _, org := range orgs {
		if strings.Contains(org.Name, parliamentNameMark) && org.DissolutionDate == "" {
			matches = append(matches, org)
		}
	}
	if len(matches) != 1 {
		return schema.Organization{}, errors.NewValidationError("current_term", len(matches),
			"expected exactly one current term organization")
	}
	return matches[0], nil
}

// termClubs returns the parliamentary clubs under the term org, keyed by id,
// with the club prefix stripped from the name.
func termClubs(orgs []schema.Organization, termID string) map[string]string {
	clubs := make(map[string]string)
	for _, org := range orgs {
		if org.ParentID == termID && strings.Contains(org.Name, clubNameMark) {
			clubs[org.ID] = stripClubPrefix(org.Name)
		}
	}
	return clubs
}

func stripClubPrefix(name string) string {
	return strings.TrimSpace(clubPrefixRe.ReplaceAllString(name, ""))
}

// deputy is one row of the raw poslanec.unl register.
type deputy struct {
	PersonID        string // psp:person:<id_osoba>
	RawPersonID     string
	ConstituencyID  string // psp:org:<id_kraj>, empty when unset
	CandidateListID string // psp:org:<id_klub>
	TermID          string // psp:org:<id_obdobi>
	Current         bool
}

const poslanecColumns = 16

// readDeputies parses poslanec.unl from the raw members directory.
func readDeputies(ctx context.Context, rawMembersDir string) ([]deputy, error) {
	path := filepath.Join(rawMembersDir, "poslanec.unl")
	rows, err := unl.ReadFile(path, poslanecColumns)
	if err != nil {
		return nil, err
	}
	deputies := make([]deputy, 0, len(rows))
	for _, r := range rows {
		d := deputy{
			PersonID:    schema.PersonID(r[1]),
			RawPersonID: r[1],
			Current:     r[14] == "1",
		}
		if r[2] != "" {
			d.ConstituencyID = schema.OrgID(r[2])
		}
		if r[3] != "" {
			d.CandidateListID = schema.OrgID(r[3])
		}
		if r[4] != "" {
			d.TermID = schema.OrgID(r[4])
		}
		deputies = append(deputies, d)
	}
	logging.Ctx(ctx).Debug().Int("rows", len(deputies)).Str("path", path).Msg("Read deputy register")
	return deputies, nil
}
