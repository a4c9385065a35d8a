package analyses

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// MembershipItem is one entry in a member's nested membership lists.
type MembershipItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// MemberMemberships groups a member's memberships the way the analyses
// standard nests them.
type MemberMemberships struct {
	Parliament    []MembershipItem `json:"parliament"`
	Groups        []MembershipItem `json:"groups"`
	CandidateList []MembershipItem `json:"candidate_list"`
	Constituency  []MembershipItem `json:"constituency"`
}

// Member is one row of the members analysis outputs.
type Member struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	GivenName   *string             `json:"given_name"`
	FamilyName  *string             `json:"family_name"`
	BirthDate   *string             `json:"birth_date"`
	DeathDate   *string             `json:"death_date"`
	Gender      *string             `json:"gender"`
	Identifiers []schema.Identifier `json:"identifiers"`
	Sources     []schema.Source     `json:"sources"`
	Image       string              `json:"image"`
	Memberships MemberMemberships   `json:"memberships"`
}

// The two members CSVs share their fields but not their order: the
// memberships column sits third in current_members.csv and last in
// all_members.csv.
var currentMemberCSVColumns = []string{
	"id", "name", "memberships", "identifiers", "sources",
	"given_name", "family_name", "birth_date", "death_date", "gender", "image",
}

var allMemberCSVColumns = []string{
	"id", "name", "identifiers", "sources",
	"given_name", "family_name", "birth_date", "death_date", "gender",
	"image", "memberships",
}

func (m Member) csvCells() (identifiers, sources, memberships string, err error) {
	ids, err := json.Marshal(m.Identifiers)
	if err != nil {
		return "", "", "", errors.WrapParse("json", "csv cell", err)
	}
	srcs, err := json.Marshal(m.Sources)
	if err != nil {
		return "", "", "", errors.WrapParse("json", "csv cell", err)
	}
	mems, err := json.Marshal(m.Memberships)
	if err != nil {
		return "", "", "", errors.WrapParse("json", "csv cell", err)
	}
	return string(ids), string(srcs), string(mems), nil
}

// CSVRow renders the all-members layout with the nested structures as JSON
// cells.
func (m Member) CSVRow() ([]string, error) {
	identifiers, sources, memberships, err := m.csvCells()
	if err != nil {
		return nil, err
	}
	return []string{
		m.ID, m.Name, identifiers, sources,
		deref(m.GivenName), deref(m.FamilyName),
		deref(m.BirthDate), deref(m.DeathDate), deref(m.Gender),
		m.Image, memberships,
	}, nil
}

// currentMemberRow renders the current-members layout, memberships third.
type currentMemberRow struct{ Member }

func (m currentMemberRow) CSVRow() ([]string, error) {
	identifiers, sources, memberships, err := m.csvCells()
	if err != nil {
		return nil, err
	}
	return []string{
		m.ID, m.Name, memberships, identifiers, sources,
		deref(m.GivenName), deref(m.FamilyName),
		deref(m.BirthDate), deref(m.DeathDate), deref(m.Gender),
		m.Image,
	}, nil
}

// RunCurrentMembers writes the MPs currently holding a mandate, with nested
// memberships, to current-members/outputs.
func RunCurrentMembers(ctx context.Context, standardDir, rawMembersDir, analysesDir string) error {
	return runMembers(ctx, standardDir, rawMembersDir,
		filepath.Join(analysesDir, "current-members", "outputs", "current_members.json"),
		filepath.Join(analysesDir, "current-members", "outputs", "current_members.csv"),
		true)
}

// RunAllMembers writes everyone who held a mandate during the term, current
// or not, to all-members/outputs.
func RunAllMembers(ctx context.Context, standardDir, rawMembersDir, analysesDir string) error {
	return runMembers(ctx, standardDir, rawMembersDir,
		filepath.Join(analysesDir, "all-members", "outputs", "all_members.json"),
		filepath.Join(analysesDir, "all-members", "outputs", "all_members.csv"),
		false)
}

func runMembers(ctx context.Context, standardDir, rawMembersDir, jsonPath, csvPath string, currentOnly bool) error {
	persons, err := readPersons(standardDir)
	if err != nil {
		return err
	}
	orgs, err := readOrganizations(standardDir)
	if err != nil {
		return err
	}
	memberships, err := readMemberships(standardDir)
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
	if termOrg.FoundingDate == "" {
		return errors.NewValidationError("current_term.since", termOrg.ID, "current term missing founding date")
	}
	termYear, _, _ := strings.Cut(termOrg.FoundingDate, "-")

	orgNames := make(map[string]string, len(orgs))
	for _, org := range orgs {
		orgNames[org.ID] = org.Name
	}
	clubs := termClubs(orgs, termOrg.ID)

	// Deputy register rows for this term; candidate list and constituency
	// only exist there, not in the standardized tables.
	candidateByPerson := make(map[string]string)
	constituencyByPerson := make(map[string]string)
	currentIDs := make(map[string]bool)
	for _, d := range deputies {
		if d.TermID != termOrg.ID {
			continue
		}
		candidateByPerson[d.PersonID] = d.CandidateListID
		constituencyByPerson[d.PersonID] = d.ConstituencyID
		if d.Current {
			currentIDs[d.PersonID] = true
		}
	}

	// Historical rows of the same orgs are dropped: only memberships still
	// open or ending after the term start belong to this term.
	inTerm := func(m schema.Membership) bool {
		return m.EndDate == "" || m.EndDate >= termOrg.FoundingDate
	}

	memberIDs := make(map[string]bool)
	if currentOnly {
		memberIDs = currentIDs
	} else {
		for _, m := range memberships {
			if m.OrganizationID == termOrg.ID && inTerm(m) {
				memberIDs[m.PersonID] = true
			}
		}
	}
	if len(memberIDs) == 0 {
		return errors.NewValidationError("members", jsonPath, "no members found for the current term")
	}

	nested := make(map[string]*MemberMemberships, len(memberIDs))
	for pid := range memberIDs {
		nested[pid] = &MemberMemberships{
			Parliament:    []MembershipItem{},
			Groups:        []MembershipItem{},
			CandidateList: []MembershipItem{},
			Constituency:  []MembershipItem{},
		}
	}

	for _, m := range memberships {
		if !memberIDs[m.PersonID] {
			continue
		}
		if !currentOnly && !inTerm(m) {
			continue
		}
		switch {
		case m.OrganizationID == termOrg.ID:
			nested[m.PersonID].Parliament = append(nested[m.PersonID].Parliament, MembershipItem{
				ID:        termOrg.ID,
				Name:      termOrg.Name,
				StartDate: optional(m.StartDate),
				EndDate:   optional(m.EndDate),
			})
		case clubs[m.OrganizationID] != "":
			nested[m.PersonID].Groups = append(nested[m.PersonID].Groups, MembershipItem{
				ID:        m.OrganizationID,
				Name:      clubs[m.OrganizationID],
				StartDate: optional(m.StartDate),
				EndDate:   optional(m.EndDate),
			})
		}
	}

	for pid, m := range nested {
		sortItems(m.Parliament)
		sortItems(m.Groups)

		// Independents can miss the zarazeni row for the chamber itself;
		// fall back to the term dates.
		if len(m.Parliament) == 0 {
			m.Parliament = append(m.Parliament, MembershipItem{
				ID:        termOrg.ID,
				Name:      termOrg.Name,
				StartDate: optional(termOrg.FoundingDate),
			})
		}

		// Candidate list and constituency take the dates of the first
		// parliament membership.
		start, end := m.Parliament[0].StartDate, m.Parliament[0].EndDate
		if id := candidateByPerson[pid]; id != "" {
			m.CandidateList = []MembershipItem{{ID: id, Name: orgName(orgNames, id), StartDate: start, EndDate: end}}
		}
		if id := constituencyByPerson[pid]; id != "" {
			m.Constituency = []MembershipItem{{ID: id, Name: orgName(orgNames, id), StartDate: start, EndDate: end}}
		}
	}

	var members []Member
	for _, p := range persons {
		if !memberIDs[p.ID] {
			continue
		}
		member := Member{
			ID:          p.ID,
			Name:        p.Name,
			GivenName:   optional(p.GivenName),
			FamilyName:  optional(p.FamilyName),
			BirthDate:   optional(p.BirthDate),
			DeathDate:   optional(p.DeathDate),
			Gender:      optional(p.Gender),
			Identifiers: p.Identifiers,
			Sources:     p.Sources,
			Image:       photoURL(termYear, p.ID),
			Memberships: *nested[p.ID],
		}
		if member.Identifiers == nil {
			member.Identifiers = []schema.Identifier{}
		}
		if member.Sources == nil {
			member.Sources = []schema.Source{}
		}
		members = append(members, member)
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})

	if err := schema.WriteJSON(jsonPath, members); err != nil {
		return err
	}
	if currentOnly {
		rows := make([]currentMemberRow, len(members))
		for i, m := range members {
			rows[i] = currentMemberRow{m}
		}
		if err := schema.WriteCSV(csvPath, currentMemberCSVColumns, rows); err != nil {
			return err
		}
	} else if err := schema.WriteCSV(csvPath, allMemberCSVColumns, members); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Int("rows", len(members)).Str("path", jsonPath).Msg("Wrote members")
	return nil
}

// photoURL derives the official portrait URL from the term start year and
// the numeric person id.
func photoURL(termYear, personID string) string {
	raw := strings.TrimPrefix(personID, schema.PersonIDPrefix)
	return fmt.Sprintf("https://www.psp.cz/eknih/cdrom/%sps/eknih/%sps/poslanci/i%s.jpg", termYear, termYear, raw)
}

func orgName(names map[string]string, id string) string {
	if name := names[id]; name != "" {
		return name
	}
	return id
}

func sortItems(items []MembershipItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := deref(items[i].StartDate), deref(items[j].StartDate)
		if a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
