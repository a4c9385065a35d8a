package standardize_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/standardize"
)

func writeVotesFixture(t *testing.T, dir string) {
	t.Helper()
	// Summary: 85001 passed, 85003 failed, 85002 void (zmatecne).
	writeUNL(t, dir, "hl2025s.unl",
		"85003|165|9|14|5|20.11.2025|09:00||||||||R|Zamítnutý návrh||",
		"85001|165|9|12|3|19.11.2025|14:05||||||||A|Novela zákona||",
		"85002|165|9|13|4|19.11.2025|14:20||||||||A|Zmatečné hlasování||",
	)
	writeUNL(t, dir, "zmatecne.unl", "85002")
	writeUNL(t, dir, "hl2025h1.unl",
		"501|85001|A|",
		"501|85002|A|",
		"501|85003|@|",
		"999|85001|A|",
		"502|85003|F|",
	)
}

func TestVotes(t *testing.T) {
	dir := t.TempDir()
	writeMembersFixture(t, dir)
	writeVotesFixture(t, dir)

	standardDir := filepath.Join(dir, "standard")
	publishDir := filepath.Join(dir, "publish")
	out := standardize.DefaultVotesOutputs(standardDir, publishDir)

	stats, err := standardize.Votes(context.Background(), dir, dir, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VoteEvents)
	assert.Equal(t, 2, stats.Motions)
	assert.Equal(t, 3, stats.Votes, "void vote and unknown deputy rows dropped")
	assert.Equal(t, 1, stats.VoidVotes)

	t.Run("vote events sorted by numeric identifier, void excluded", func(t *testing.T) {
		data, err := os.ReadFile(out.VoteEventsJSON)
		require.NoError(t, err)

		var events []schema.VoteEvent
		require.NoError(t, json.Unmarshal(data, &events))
		require.Len(t, events, 2)
		assert.Equal(t, "85001", events[0].Identifier)
		assert.Equal(t, "85003", events[1].Identifier)
		assert.Equal(t, "psp:vote-event:85001", events[0].ID)
		assert.Equal(t, "psp:motion:85001", events[0].MotionID)
		assert.Equal(t, "psp:org:165", events[0].OrganizationID)
		require.NotNil(t, events[0].StartDate)
		assert.Equal(t, "2025-11-19T14:05:00", *events[0].StartDate)
		require.NotNil(t, events[0].Result)
		assert.Equal(t, "pass", *events[0].Result)
		require.NotNil(t, events[1].Result)
		assert.Equal(t, "fail", *events[1].Result)
		require.NotNil(t, events[0].Extras.SittingNumber)
		assert.Equal(t, "9", *events[0].Extras.SittingNumber)
	})

	t.Run("motions carry text date and passed/failed results", func(t *testing.T) {
		data, err := os.ReadFile(out.MotionsJSON)
		require.NoError(t, err)

		var motions []schema.Motion
		require.NoError(t, json.Unmarshal(data, &motions))
		require.Len(t, motions, 2)
		assert.Equal(t, "psp:motion:85001", motions[0].ID)
		require.NotNil(t, motions[0].Text)
		assert.Equal(t, "Novela zákona", *motions[0].Text)
		require.NotNil(t, motions[0].Date)
		assert.Equal(t, "2025-11-19", *motions[0].Date)
		require.NotNil(t, motions[0].Result)
		assert.Equal(t, "passed", *motions[0].Result)
		require.NotNil(t, motions[1].Result)
		assert.Equal(t, "failed", *motions[1].Result)
	})

	t.Run("votes CSV", func(t *testing.T) {
		f, err := os.Open(out.VotesCSV)
		require.NoError(t, err)
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, schema.VoteColumns, records[0])
		assert.Equal(t, []string{"psp:vote-event:85001", "psp:person:1", "yes"}, records[1])
		assert.Equal(t, []string{"psp:vote-event:85003", "psp:person:1", "absent"}, records[2])
		assert.Equal(t, []string{"psp:vote-event:85003", "psp:person:2", "not voting"}, records[3])
	})

	t.Run("votes parquet matches CSV", func(t *testing.T) {
		rows, err := schema.ReadParquet[schema.Vote](out.VotesParquet)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "psp:person:1", rows[0].VoterID)
	})

	t.Run("vote events parquet written", func(t *testing.T) {
		rows, err := schema.ReadParquet[schema.VoteEvent](out.VoteEventsParquet)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestVotesMissingSummary(t *testing.T) {
	dir := t.TempDir()
	writeMembersFixture(t, dir)

	out := standardize.DefaultVotesOutputs(filepath.Join(dir, "s"), filepath.Join(dir, "p"))
	_, err := standardize.Votes(context.Background(), dir, dir, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestObjections(t *testing.T) {
	dir := t.TempDir()
	// Void IDs across terms: 12345 is from an older term, filtered by min-id.
	writeUNL(t, dir, "zmatecne.unl", "12345", "85002", "85010")
	writeUNL(t, dir, "hl2025s.unl",
		"85010|165|9|20|7|21.11.2025|10:15||||||||A|Opakované hlasování||",
	)

	objections, err := standardize.Objections(context.Background(), dir, standardize.DefaultObjectionMinID)
	require.NoError(t, err)
	require.Len(t, objections, 2)

	assert.Equal(t, "psp:objection:85002", objections[0].ID)
	assert.Equal(t, "psp:vote-event:85002", objections[0].VoteEventID)
	assert.Equal(t, "vote_correction", objections[0].Type)
	assert.Equal(t, "invalidated", objections[0].Outcome)
	assert.Empty(t, objections[0].Date, "void votes are absent from the summary table")

	// 85010 appears in the summary, so its date is known.
	assert.Equal(t, "2025-11-21T10:15:00", objections[1].Date)
}

func TestWriteObjections(t *testing.T) {
	dir := t.TempDir()
	writeUNL(t, dir, "zmatecne.unl", "85002")

	outPath := filepath.Join(dir, "standard", "vote_event_objections.json")
	_, err := standardize.WriteObjections(context.Background(), dir, outPath, standardize.DefaultObjectionMinID)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "vote_correction", decoded[0]["type"])
}
