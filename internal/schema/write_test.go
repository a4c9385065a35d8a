package schema_test

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
)

func strPtr(s string) *string { return &s }

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standard", "persons.csv")
	rows := []schema.Person{
		{
			ID:          "psp:person:1",
			Name:        "Jiří Novák",
			GivenName:   "Jiří",
			FamilyName:  "Novák",
			BirthDate:   "1970-02-01",
			Gender:      "male",
			Identifiers: []schema.Identifier{{Scheme: "psp", Identifier: "1"}},
			Sources:     []schema.Source{{URL: "https://www.psp.cz/sqw/hp.sqw?k=1301", Note: "id_osoba=1"}},
		},
		{ID: "psp:person:2", Name: "Žaneta Svobodová"},
	}
	require.NoError(t, schema.WriteCSV(path, schema.PersonColumns, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, schema.PersonColumns, records[0])
	assert.Equal(t, "psp:person:1", records[1][0])

	// identifiers cell holds a JSON array
	var ids []schema.Identifier
	require.NoError(t, json.Unmarshal([]byte(records[1][7]), &ids))
	assert.Equal(t, "psp", ids[0].Scheme)

	// nil slices become empty cells, not the string "null"
	assert.Equal(t, "", records[2][7])
	assert.Equal(t, "", records[2][8])
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vote_events.json")
	events := []schema.VoteEvent{
		{
			ID:         "psp:vote-event:85001",
			Identifier: "85001",
			MotionID:   "psp:motion:85001",
			StartDate:  strPtr("2025-11-19T14:05:00"),
			Result:     strPtr(schema.ResultPass),
			Sources:    []schema.Source{{URL: "https://example.invalid"}},
		},
	}
	require.NoError(t, schema.WriteJSON(path, events))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1], "trailing newline")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "pass", decoded[0]["result"])
	// null extras serialize as explicit nulls, per the standard
	extras := decoded[0]["extras"].(map[string]any)
	assert.Nil(t, extras["sitting_number"])
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.parquet")

	a, err := schema.NewParquetAppender[schema.Vote](path)
	require.NoError(t, err)
	require.NoError(t, a.Append([]schema.Vote{
		{VoteEventID: "psp:vote-event:85001", VoterID: "psp:person:1", Option: schema.OptionYes},
		{VoteEventID: "psp:vote-event:85001", VoterID: "psp:person:2", Option: schema.OptionAbsent},
	}))
	require.NoError(t, a.Append([]schema.Vote{
		{VoteEventID: "psp:vote-event:85002", VoterID: "psp:person:1", Option: schema.OptionNo},
	}))
	require.NoError(t, a.Close())

	rows, err := schema.ReadParquet[schema.Vote](path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "psp:person:2", rows[1].VoterID)
	assert.Equal(t, schema.OptionNo, rows[2].Option)
}
