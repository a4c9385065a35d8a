package validate_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/internal/validate"
)

const personsSchemaJSON = `{
  "fields": [
    {"name": "id", "type": "string", "constraints": {"required": true}},
    {"name": "name", "type": "string", "constraints": {"required": true}},
    {"name": "given_name", "type": "string"},
    {"name": "family_name", "type": "string"},
    {"name": "birth_date", "type": "string"},
    {"name": "death_date", "type": "string"},
    {"name": "gender", "type": "string"},
    {"name": "identifiers", "type": "array"},
    {"name": "sources", "type": "array"}
  ]
}`

func newSchemaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, personsSchemaJSON)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeSchemasConfig(t *testing.T, dir, url string) string {
	path := filepath.Join(dir, "schemas.yml")
	writeFile(t, path, fmt.Sprintf("persons:\n  url: %[1]s\norganizations:\n  url: %[1]s\nmemberships:\n  url: %[1]s\n", url))
	return path
}

func TestTables(t *testing.T) {
	srv := newSchemaServer(t)
	client := transport.New()
	dir := t.TempDir()
	configPath := writeSchemasConfig(t, dir, srv.URL)

	standardDir := filepath.Join(dir, "standard")
	writeFile(t, filepath.Join(standardDir, "persons.csv"),
		"id,name,given_name,family_name,birth_date,death_date,gender,identifiers,sources\n"+
			"psp:person:1,Jan Novák,Jan,Novák,1970-01-02,,male,,\n")

	t.Run("valid table passes, absent tables are skipped", func(t *testing.T) {
		require.NoError(t, validate.Tables(context.Background(), client, configPath, standardDir))
	})

	t.Run("unexpected column is schema drift", func(t *testing.T) {
		writeFile(t, filepath.Join(standardDir, "persons.csv"), "id,name,nickname\npsp:person:1,Jan Novák,Honza\n")
		err := validate.Tables(context.Background(), client, configPath, standardDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema drift")
	})

	t.Run("missing required column", func(t *testing.T) {
		writeFile(t, filepath.Join(standardDir, "persons.csv"), "id,given_name\npsp:person:1,Jan\n")
		err := validate.Tables(context.Background(), client, configPath, standardDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required columns")
	})

	t.Run("required string column entirely empty", func(t *testing.T) {
		writeFile(t, filepath.Join(standardDir, "persons.csv"), "id,name\npsp:person:1,\npsp:person:2,\n")
		err := validate.Tables(context.Background(), client, configPath, standardDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entirely empty")
	})
}

func TestVotesTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "votes.csv")

	t.Run("valid", func(t *testing.T) {
		writeFile(t, path, "vote_event_id,voter_id,option\npsp:vote-event:85001,psp:person:1,yes\npsp:vote-event:85001,psp:person:2,not voting\n")
		require.NoError(t, validate.VotesTable(path))
	})

	t.Run("bad header", func(t *testing.T) {
		writeFile(t, path, "event,voter,option\na,b,yes\n")
		assert.ErrorContains(t, validate.VotesTable(path), "unexpected header")
	})

	t.Run("option outside vocabulary", func(t *testing.T) {
		writeFile(t, path, "vote_event_id,voter_id,option\npsp:vote-event:85001,psp:person:1,maybe\n")
		assert.ErrorContains(t, validate.VotesTable(path), "vocabulary")
	})

	t.Run("bad voter prefix", func(t *testing.T) {
		writeFile(t, path, "vote_event_id,voter_id,option\npsp:vote-event:85001,person:1,yes\n")
		assert.ErrorContains(t, validate.VotesTable(path), "voter_id")
	})

	t.Run("no rows", func(t *testing.T) {
		writeFile(t, path, "vote_event_id,voter_id,option\n")
		assert.ErrorContains(t, validate.VotesTable(path), "no rows")
	})
}

func TestVoteEventsSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vote_events.json")

	valid := `[
  {"id": "psp:vote-event:85001", "identifier": "85001", "motion_id": "psp:motion:85001",
   "organization_id": "psp:org:165", "extras": {"sitting_number": "9", "voting_number": "12", "agenda_item_number": null},
   "start_date": "2025-11-19T14:05:00", "result": "pass", "sources": []},
  {"id": "psp:vote-event:85003", "identifier": "85003", "motion_id": "psp:motion:85003",
   "organization_id": "psp:org:165", "extras": {"sitting_number": null, "voting_number": null, "agenda_item_number": null},
   "start_date": null, "result": "fail", "sources": []}
]`

	t.Run("valid", func(t *testing.T) {
		writeFile(t, path, valid)
		require.NoError(t, validate.VoteEventsSample(path))
	})

	t.Run("identifier order", func(t *testing.T) {
		writeFile(t, path, `[
  {"id": "psp:vote-event:85003", "identifier": "85003", "motion_id": "psp:motion:85003", "organization_id": "psp:org:165", "extras": {}, "sources": []},
  {"id": "psp:vote-event:85001", "identifier": "85001", "motion_id": "psp:motion:85001", "organization_id": "psp:org:165", "extras": {}, "sources": []}
]`)
		assert.ErrorContains(t, validate.VoteEventsSample(path), "strictly increasing")
	})

	t.Run("id identifier mismatch", func(t *testing.T) {
		writeFile(t, path, `[{"id": "psp:vote-event:9", "identifier": "85001", "motion_id": "psp:motion:85001", "organization_id": "psp:org:165", "extras": {}, "sources": []}]`)
		assert.ErrorContains(t, validate.VoteEventsSample(path), "does not match identifier")
	})

	t.Run("empty list", func(t *testing.T) {
		writeFile(t, path, `[]`)
		assert.ErrorContains(t, validate.VoteEventsSample(path), "no rows")
	})
}

func TestMotionsSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motions.json")

	t.Run("valid", func(t *testing.T) {
		writeFile(t, path, `[
  {"id": "psp:motion:85001", "identifier": "85001", "organization_id": "psp:org:165", "extras": {},
   "date": "2025-11-19", "text": "Novela zákona", "result": "passed", "sources": []}
]`)
		require.NoError(t, validate.MotionsSample(path))
	})

	t.Run("result outside vocabulary", func(t *testing.T) {
		writeFile(t, path, `[{"id": "psp:motion:85001", "identifier": "85001", "organization_id": "psp:org:165", "extras": {}, "result": "pass", "sources": []}]`)
		assert.ErrorContains(t, validate.MotionsSample(path), "vocabulary")
	})
}

func TestCurrentTermOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "current_term.json")

	t.Run("valid", func(t *testing.T) {
		writeFile(t, path, `{"id": "psp:org:165", "name": "Poslanecká sněmovna 2025", "since": "2025-10-21",
  "until": null, "until_latest": "2029-10-21",
  "identifiers": [{"scheme": "psp", "identifier": "9"}]}`)
		require.NoError(t, validate.CurrentTermOutput(path))
	})

	t.Run("missing since", func(t *testing.T) {
		writeFile(t, path, `{"id": "psp:org:165", "name": "x", "identifiers": []}`)
		assert.ErrorContains(t, validate.CurrentTermOutput(path), "since")
	})

	t.Run("identifier entry shape", func(t *testing.T) {
		writeFile(t, path, `{"id": "psp:org:165", "name": "x", "since": "2025-10-21", "identifiers": [{"scheme": "psp"}]}`)
		assert.ErrorContains(t, validate.CurrentTermOutput(path), "scheme and identifier")
	})
}

func TestGroupsOutput(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "current_groups.json")
	csvPath := filepath.Join(dir, "current_groups.csv")

	writeFile(t, jsonPath, `[{"id": "psp:org:200", "name": "ANO", "classification": "group"}]`)
	writeFile(t, csvPath, "id,name,classification\npsp:org:200,ANO,group\n")
	require.NoError(t, validate.GroupsOutput(jsonPath, csvPath))

	t.Run("row count mismatch", func(t *testing.T) {
		writeFile(t, csvPath, "id,name,classification\npsp:org:200,ANO,group\npsp:org:201,SPD,group\n")
		assert.ErrorContains(t, validate.GroupsOutput(jsonPath, csvPath), "row counts differ")
	})
}

func TestMembersOutput(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "current_members.json")
	csvPath := filepath.Join(dir, "current_members.csv")

	writeFile(t, jsonPath, `[{"id": "psp:person:1", "name": "Jan Novák",
  "memberships": {"parliament": [{"id": "psp:org:165", "name": "Poslanecká sněmovna", "start_date": "2025-10-21", "end_date": null}],
                  "groups": [{"id": "psp:org:200", "name": "ANO"}]}}]`)
	writeFile(t, csvPath, "id,name,memberships\npsp:person:1,Jan Novák,\"{}\"\n")
	require.NoError(t, validate.MembersOutput(csvPath, jsonPath))

	t.Run("membership entry missing name", func(t *testing.T) {
		writeFile(t, jsonPath, `[{"id": "psp:person:1", "name": "Jan Novák", "memberships": {"groups": [{"id": "psp:org:200"}]}}]`)
		assert.ErrorContains(t, validate.MembersOutput(csvPath, jsonPath), "memberships.groups[0].name")
	})
}
