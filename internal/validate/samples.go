package validate

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// VoteEventsSample checks the vote-events JSON: non-empty, prefixed ids that
// match the raw identifier, results inside the vocabulary and identifiers in
// strictly increasing numeric order.
func VoteEventsSample(path string) error {
	var events []schema.VoteEvent
	if err := readJSONFile(path, &events); err != nil {
		return err
	}
	if err := requireNonEmpty("vote_events", len(events)); err != nil {
		return err
	}

	last := -1
	for i, e := range events {
		if i >= sampleSize {
			break
		}
		if e.ID != schema.VoteEventID(e.Identifier) {
			return fieldError("vote_events", i, "id", "id does not match identifier: "+e.ID)
		}
		if e.MotionID != schema.MotionID(e.Identifier) {
			return fieldError("vote_events", i, "motion_id", "motion id does not match identifier: "+e.MotionID)
		}
		if !strings.HasPrefix(e.OrganizationID, schema.OrgIDPrefix) {
			return fieldError("vote_events", i, "organization_id", "id not prefixed "+schema.OrgIDPrefix)
		}
		if e.Result != nil && *e.Result != schema.ResultPass && *e.Result != schema.ResultFail {
			return fieldError("vote_events", i, "result", "value outside vocabulary: "+*e.Result)
		}
		n, err := strconv.Atoi(e.Identifier)
		if err != nil {
			return fieldError("vote_events", i, "identifier", "not numeric: "+e.Identifier)
		}
		if n <= last {
			return fieldError("vote_events", i, "identifier", "identifiers not strictly increasing")
		}
		last = n
	}
	return nil
}

// MotionsSample checks the motions JSON the same way.
func MotionsSample(path string) error {
	var motions []schema.Motion
	if err := readJSONFile(path, &motions); err != nil {
		return err
	}
	if err := requireNonEmpty("motions", len(motions)); err != nil {
		return err
	}

	last := -1
	for i, m := range motions {
		if i >= sampleSize {
			break
		}
		if m.ID != schema.MotionID(m.Identifier) {
			return fieldError("motions", i, "id", "id does not match identifier: "+m.ID)
		}
		if !strings.HasPrefix(m.OrganizationID, schema.OrgIDPrefix) {
			return fieldError("motions", i, "organization_id", "id not prefixed "+schema.OrgIDPrefix)
		}
		if m.Result != nil && *m.Result != schema.ResultPassed && *m.Result != schema.ResultFailed {
			return fieldError("motions", i, "result", "value outside vocabulary: "+*m.Result)
		}
		n, err := strconv.Atoi(m.Identifier)
		if err != nil {
			return fieldError("motions", i, "identifier", "not numeric: "+m.Identifier)
		}
		if n <= last {
			return fieldError("motions", i, "identifier", "identifiers not strictly increasing")
		}
		last = n
	}
	return nil
}

func readJSONFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.WrapParse("json", path, err)
	}
	return nil
}
