package standardize_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/legislature-data/cz-psp-pipeline/internal/standardize"
)

// writeUNL writes rows as a Windows-1250 encoded UNL file.
func writeUNL(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	encoded, err := charmap.Windows1250.NewEncoder().String(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(encoded), 0o644))
}

func writeMembersFixture(t *testing.T, dir string) {
	t.Helper()
	writeUNL(t, dir, "osoby.unl",
		"1|Ing.|Novák|Jiří||09.07.1970|M|||",
		"2||Svobodová|Žaneta||01.01.1980|Ž|02.03.2020||",
	)
	writeUNL(t, dir, "organy.unl",
		"165|0|1|PSP9|Poslanecká sněmovna||08.10.2021|||0|",
		"200|165|2|ANO|Poslanecký klub ANO 2011||10.11.2021|||0|",
	)
	writeUNL(t, dir, "zarazeni.unl",
		"1|165|1|08.10.2021||||",
		"2|200|1|10.11.2021|01.06.2023|||",
	)
	writeUNL(t, dir, "poslanec.unl",
		"501|1|7|200|165||||||||||1|",
		"502|2|3|200|165||||||||||0|",
	)
}

func TestMembers(t *testing.T) {
	dir := t.TempDir()
	writeMembersFixture(t, dir)

	res, err := standardize.Members(context.Background(), dir)
	require.NoError(t, err)

	t.Run("persons", func(t *testing.T) {
		require.Len(t, res.Persons, 2)
		p := res.Persons[0]
		assert.Equal(t, "psp:person:1", p.ID)
		assert.Equal(t, "Jiří Novák", p.Name)
		assert.Equal(t, "Novák", p.FamilyName)
		assert.Equal(t, "1970-07-09", p.BirthDate)
		assert.Equal(t, "male", p.Gender)
		assert.Equal(t, "", p.DeathDate)
		require.Len(t, p.Identifiers, 1)
		assert.Equal(t, "psp", p.Identifiers[0].Scheme)
		assert.Equal(t, "1", p.Identifiers[0].Identifier)

		dead := res.Persons[1]
		assert.Equal(t, "female", dead.Gender)
		assert.Equal(t, "2020-03-02", dead.DeathDate)
	})

	t.Run("organizations", func(t *testing.T) {
		require.Len(t, res.Organizations, 2)
		term := res.Organizations[0]
		assert.Equal(t, "psp:org:165", term.ID)
		assert.Equal(t, "Poslanecká sněmovna", term.Name)
		assert.Equal(t, "organization", term.Classification)
		assert.Equal(t, "psp:org:0", term.ParentID)
		assert.Equal(t, "2021-10-08", term.FoundingDate)
		assert.Equal(t, "", term.DissolutionDate)

		club := res.Organizations[1]
		assert.Equal(t, "psp:org:165", club.ParentID)
	})

	t.Run("memberships", func(t *testing.T) {
		require.Len(t, res.Memberships, 2)
		m := res.Memberships[1]
		assert.Equal(t, "psp:membership:2:200:10.11.2021:01.06.2023", m.ID)
		assert.Equal(t, "psp:person:2", m.PersonID)
		assert.Equal(t, "psp:org:200", m.OrganizationID)
		assert.Equal(t, "2021-11-10", m.StartDate)
		assert.Equal(t, "2023-06-01", m.EndDate)
		assert.Contains(t, m.Sources[0].Note, "id_osoba=2")
	})
}

func TestWriteMembers(t *testing.T) {
	dir := t.TempDir()
	writeMembersFixture(t, dir)

	res, err := standardize.Members(context.Background(), dir)
	require.NoError(t, err)

	outDir := filepath.Join(dir, "standard")
	paths, err := standardize.WriteMembers(context.Background(), res, outDir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestDeputyToPersonMap(t *testing.T) {
	dir := t.TempDir()
	writeMembersFixture(t, dir)

	m, err := standardize.DeputyToPersonMap(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"501": "1", "502": "2"}, m)
}

func TestMembersMissingTable(t *testing.T) {
	_, err := standardize.Members(context.Background(), t.TempDir())
	require.Error(t, err)
}
