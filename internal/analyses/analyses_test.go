package analyses_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/legislature-data/cz-psp-pipeline/internal/analyses"
	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
)

func writeUNL(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	encoder := charmap.Windows1250.NewEncoder()
	var encoded string
	for _, line := range lines {
		enc, err := encoder.String(line)
		require.NoError(t, err)
		encoded += enc + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(encoded), 0o644))
}

// fixture builds a standardized workspace for one term with two clubs, two
// sitting MPs and one MP who left during the term.
func fixture(t *testing.T) (standardDir, rawDir string) {
	t.Helper()
	dir := t.TempDir()
	standardDir = filepath.Join(dir, "standard")
	rawDir = filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(standardDir, 0o755))
	require.NoError(t, os.MkdirAll(rawDir, 0o755))

	persons := []schema.Person{
		{ID: "psp:person:1", Name: "Jan Novák", GivenName: "Jan", FamilyName: "Novák", Gender: "male",
			Identifiers: []schema.Identifier{{Scheme: "psp", Identifier: "1"}}},
		{ID: "psp:person:2", Name: "Alena Benešová", GivenName: "Alena", FamilyName: "Benešová", Gender: "female"},
		{ID: "psp:person:3", Name: "Petr Dvořák", GivenName: "Petr", FamilyName: "Dvořák", Gender: "male"},
	}
	require.NoError(t, schema.WriteCSV(filepath.Join(standardDir, "persons.csv"), schema.PersonColumns, persons))

	orgs := []schema.Organization{
		{ID: "psp:org:165", Name: "Poslanecká sněmovna", Classification: "chamber", FoundingDate: "2025-10-21"},
		{ID: "psp:org:142", Name: "Poslanecká sněmovna", Classification: "chamber", FoundingDate: "2021-10-08", DissolutionDate: "2025-10-20"},
		{ID: "psp:org:200", Name: "Poslanecký klub ANO 2011", ParentID: "psp:org:165", FoundingDate: "2025-10-21"},
		{ID: "psp:org:201", Name: "Poslanecký klub Svoboda a přímá demokracie", ParentID: "psp:org:165", FoundingDate: "2025-10-21"},
		{ID: "psp:org:300", Name: "SPOLU", ParentID: "psp:org:165"},
		{ID: "psp:org:77", Name: "Hlavní město Praha"},
	}
	require.NoError(t, schema.WriteCSV(filepath.Join(standardDir, "organizations.csv"), schema.OrganizationColumns, orgs))

	memberships := []schema.Membership{
		{ID: "m1", PersonID: "psp:person:1", OrganizationID: "psp:org:165", StartDate: "2025-10-21"},
		{ID: "m2", PersonID: "psp:person:1", OrganizationID: "psp:org:200", StartDate: "2025-10-21"},
		{ID: "m3", PersonID: "psp:person:2", OrganizationID: "psp:org:165", StartDate: "2025-10-21"},
		{ID: "m4", PersonID: "psp:person:2", OrganizationID: "psp:org:201", StartDate: "2025-10-21"},
		{ID: "m5", PersonID: "psp:person:3", OrganizationID: "psp:org:165", StartDate: "2025-10-21", EndDate: "2025-12-01"},
	}
	require.NoError(t, schema.WriteCSV(filepath.Join(standardDir, "memberships.csv"), schema.MembershipColumns, memberships))

	writeUNL(t, rawDir, "poslanec.unl",
		"501|1|77|300|165||||||||||1|",
		"502|2|77|300|165||||||||||1|",
		"503|3|77|300|165||||||||||0|",
	)
	writeUNL(t, rawDir, "organy.unl",
		"165||1|PSP10|Poslanecká sněmovna|||2025-10-21|||",
		"142||1|PSP9|Poslanecká sněmovna|||2021-10-08|2025-10-20||",
	)
	return standardDir, rawDir
}

func TestRunCurrentTerm(t *testing.T) {
	standardDir, rawDir := fixture(t)
	analysesDir := t.TempDir()

	term, err := analyses.RunCurrentTerm(context.Background(), standardDir, rawDir, analysesDir)
	require.NoError(t, err)

	assert.Equal(t, "psp:org:165", term.ID)
	assert.Equal(t, "Poslanecká sněmovna 2025 -", term.Name)
	assert.Equal(t, "2025-10-21", term.Since)
	assert.Nil(t, term.Until)
	assert.Equal(t, "2029-10-21", term.UntilLatest)
	require.Len(t, term.Identifiers, 1)
	assert.Equal(t, schema.Identifier{Scheme: "psp", Identifier: "10"}, term.Identifiers[0])

	data, err := os.ReadFile(filepath.Join(analysesDir, "current-term", "outputs", "current_term.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["until"], "open term serializes until as null")
}

func TestRunCurrentTermAmbiguous(t *testing.T) {
	standardDir, rawDir := fixture(t)
	// A second undissolved chamber makes the term ambiguous.
	f, err := os.OpenFile(filepath.Join(standardDir, "organizations.csv"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("psp:org:999,Poslanecká sněmovna,chamber,,2025-10-21,,,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = analyses.RunCurrentTerm(context.Background(), standardDir, rawDir, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one current term")
}

func TestRunGroups(t *testing.T) {
	standardDir, _ := fixture(t)
	analysesDir := t.TempDir()

	require.NoError(t, analyses.RunCurrentGroups(context.Background(), standardDir, analysesDir))

	data, err := os.ReadFile(filepath.Join(analysesDir, "current-groups", "outputs", "current_groups.json"))
	require.NoError(t, err)
	var groups []schema.Organization
	require.NoError(t, json.Unmarshal(data, &groups))

	require.Len(t, groups, 2, "candidate list orgs under the term are not clubs")
	assert.Equal(t, "ANO 2011", groups[0].Name)
	assert.Equal(t, "Svoboda a přímá demokracie", groups[1].Name)
	for _, g := range groups {
		assert.Equal(t, "group", g.Classification)
		assert.Equal(t, "psp:org:165", g.ParentID)
	}

	f, err := os.Open(filepath.Join(analysesDir, "current-groups", "outputs", "current_groups.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "name", "classification", "parent_id", "founding_date", "dissolution_date"}, records[0])
	assert.Equal(t, "psp:org:200", records[1][0])
}

func TestRunCurrentMembers(t *testing.T) {
	standardDir, rawDir := fixture(t)
	analysesDir := t.TempDir()

	require.NoError(t, analyses.RunCurrentMembers(context.Background(), standardDir, rawDir, analysesDir))

	data, err := os.ReadFile(filepath.Join(analysesDir, "current-members", "outputs", "current_members.json"))
	require.NoError(t, err)
	var members []analyses.Member
	require.NoError(t, json.Unmarshal(data, &members))

	require.Len(t, members, 2, "the MP who left keeps no current mandate")
	assert.Equal(t, "Alena Benešová", members[0].Name)
	assert.Equal(t, "Jan Novák", members[1].Name)

	jan := members[1]
	require.Len(t, jan.Memberships.Parliament, 1)
	assert.Equal(t, "psp:org:165", jan.Memberships.Parliament[0].ID)
	assert.Equal(t, "Poslanecká sněmovna", jan.Memberships.Parliament[0].Name)
	require.NotNil(t, jan.Memberships.Parliament[0].StartDate)
	assert.Equal(t, "2025-10-21", *jan.Memberships.Parliament[0].StartDate)
	assert.Nil(t, jan.Memberships.Parliament[0].EndDate)

	require.Len(t, jan.Memberships.Groups, 1)
	assert.Equal(t, "ANO 2011", jan.Memberships.Groups[0].Name, "club prefix stripped")

	require.Len(t, jan.Memberships.CandidateList, 1)
	assert.Equal(t, "psp:org:300", jan.Memberships.CandidateList[0].ID)
	assert.Equal(t, "SPOLU", jan.Memberships.CandidateList[0].Name)

	require.Len(t, jan.Memberships.Constituency, 1)
	assert.Equal(t, "Hlavní město Praha", jan.Memberships.Constituency[0].Name)

	assert.Equal(t, "https://www.psp.cz/eknih/cdrom/2025ps/eknih/2025ps/poslanci/i1.jpg", jan.Image)

	t.Run("csv row parity", func(t *testing.T) {
		f, err := os.Open(filepath.Join(analysesDir, "current-members", "outputs", "current_members.csv"))
		require.NoError(t, err)
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{
			"id", "name", "memberships", "identifiers", "sources",
			"given_name", "family_name", "birth_date", "death_date", "gender", "image",
		}, records[0])
		assert.Equal(t, "psp:person:2", records[1][0])

		// The memberships cell sits third and is itself JSON.
		var m analyses.MemberMemberships
		require.NoError(t, json.Unmarshal([]byte(records[2][2]), &m))
		assert.Len(t, m.Groups, 1)
	})
}

func TestRunAllMembers(t *testing.T) {
	standardDir, rawDir := fixture(t)
	analysesDir := t.TempDir()

	require.NoError(t, analyses.RunAllMembers(context.Background(), standardDir, rawDir, analysesDir))

	data, err := os.ReadFile(filepath.Join(analysesDir, "all-members", "outputs", "all_members.json"))
	require.NoError(t, err)
	var members []analyses.Member
	require.NoError(t, json.Unmarshal(data, &members))

	require.Len(t, members, 3, "everyone with a term membership, mandate or not")
	assert.Equal(t, "Petr Dvořák", members[2].Name)

	petr := members[2]
	require.Len(t, petr.Memberships.Parliament, 1)
	require.NotNil(t, petr.Memberships.Parliament[0].EndDate)
	assert.Equal(t, "2025-12-01", *petr.Memberships.Parliament[0].EndDate)
	require.Len(t, petr.Memberships.CandidateList, 1, "register rows without the current flag still carry the candidate list")

	t.Run("csv keeps memberships last", func(t *testing.T) {
		f, err := os.Open(filepath.Join(analysesDir, "all-members", "outputs", "all_members.csv"))
		require.NoError(t, err)
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, []string{
			"id", "name", "identifiers", "sources",
			"given_name", "family_name", "birth_date", "death_date", "gender",
			"image", "memberships",
		}, records[0])

		var m analyses.MemberMemberships
		require.NoError(t, json.Unmarshal([]byte(records[1][len(records[1])-1]), &m))
		assert.NotEmpty(t, m.Parliament)
	})
}

func TestRunCurrentMPs(t *testing.T) {
	standardDir, rawDir := fixture(t)
	analysesDir := t.TempDir()

	require.NoError(t, analyses.RunCurrentMPs(context.Background(), standardDir, rawDir, analysesDir))

	f, err := os.Open(filepath.Join(analysesDir, "example", "outputs", "current_mps.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"person_id", "person_name", "party_id", "party_name", "term_id"}, records[0])
	assert.Equal(t, []string{"psp:person:2", "Alena Benešová", "psp:org:300", "SPOLU", "psp:org:165"}, records[1])
	assert.Equal(t, "psp:person:1", records[2][0])
}

func TestRunAll(t *testing.T) {
	standardDir, rawDir := fixture(t)
	analysesDir := t.TempDir()

	require.NoError(t, analyses.RunAll(context.Background(), standardDir, rawDir, analysesDir))

	for _, rel := range []string{
		"current-members/outputs/current_members.json",
		"current-members/outputs/current_members.csv",
		"current-groups/outputs/current_groups.json",
		"current-term/outputs/current_term.json",
		"all-groups/outputs/all_groups.json",
		"all-members/outputs/all_members.csv",
	} {
		assert.FileExists(t, filepath.Join(analysesDir, rel))
	}
}
