package validate

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// VotesTable checks the streamed votes CSV: exact header, at least one row,
// option values from the closed vocabulary and well-prefixed ids. The file is
// large, so it is scanned rather than loaded.
func VotesTable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return errors.WrapParse("csv", path, err)
	}
	if strings.Join(header, ",") != strings.Join(schema.VoteColumns, ",") {
		return errors.NewValidationError("votes", strings.Join(header, ","), "unexpected header")
	}

	rows := 0
	for {
		r, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WrapParse("csv", path, err)
		}
		if !strings.HasPrefix(r[0], schema.VoteEventIDPrefix) {
			return fieldError("votes", rows, "vote_event_id", "id not prefixed "+schema.VoteEventIDPrefix)
		}
		if !strings.HasPrefix(r[1], schema.PersonIDPrefix) {
			return fieldError("votes", rows, "voter_id", "id not prefixed "+schema.PersonIDPrefix)
		}
		if !schema.VoteOptions[r[2]] {
			return fieldError("votes", rows, "option", "value outside vocabulary: "+r[2])
		}
		rows++
	}
	return requireNonEmpty("votes", rows)
}
