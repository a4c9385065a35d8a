package analyses

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// MP is one row of the flat current MPs listing.
type MP struct {
	PersonID   string
	PersonName string
	PartyID    string
	PartyName  string
	TermID     string
}

var mpCSVColumns = []string{"person_id", "person_name", "party_id", "party_name", "term_id"}

func (m MP) CSVRow() ([]string, error) {
	return []string{m.PersonID, m.PersonName, m.PartyID, m.PartyName, m.TermID}, nil
}

// RunCurrentMPs writes a flat join of the current deputy register with
// person and club names, one row per sitting MP.
func RunCurrentMPs(ctx context.Context, standardDir, rawMembersDir, analysesDir string) error {
	persons, err := readPersons(standardDir)
	if err != nil {
		return err
	}
	orgs, err := readOrganizations(standardDir)
	if err != nil {
		return err
	}
	deputies, err := readDeputies(ctx, rawMembersDir)
	if err != nil {
		return err
	}
	termOrg, err := findCurrentTerm(orgs)
	if err != nil {
		return err
	}

	personNames := make(map[string]string, len(persons))
	for _, p := range persons {
		personNames[p.ID] = p.Name
	}
	orgNames := make(map[string]string, len(orgs))
	for _, org := range orgs {
		orgNames[org.ID] = org.Name
	}

	var mps []MP
	for _, d := range deputies {
		if !d.Current || d.TermID != termOrg.ID {
			continue
		}
		mps = append(mps, MP{
			PersonID:   d.PersonID,
			PersonName: personNames[d.PersonID],
			PartyID:    d.CandidateListID,
			PartyName:  orgNames[d.CandidateListID],
			TermID:     d.TermID,
		})
	}

	sort.Slice(mps, func(i, j int) bool {
		if mps[i].PersonName != mps[j].PersonName {
			return mps[i].PersonName < mps[j].PersonName
		}
		return mps[i].PersonID < mps[j].PersonID
	})

	outPath := filepath.Join(analysesDir, "example", "outputs", "current_mps.csv")
	if err := schema.WriteCSV(outPath, mpCSVColumns, mps); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Int("rows", len(mps)).Str("path", outPath).Msg("Wrote current MPs")
	return nil
}
