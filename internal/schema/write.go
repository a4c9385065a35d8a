package schema

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// CSV column orders, as defined by the standard.
var (
	PersonColumns = []string{
		"id", "name", "given_name", "family_name",
		"birth_date", "death_date", "gender", "identifiers", "sources",
	}
	OrganizationColumns = []string{
		"id", "name", "classification", "parent_id",
		"founding_date", "dissolution_date", "identifiers", "sources",
	}
	MembershipColumns = []string{
		"id", "person_id", "organization_id", "start_date", "end_date", "sources",
	}
	VoteColumns = []string{"vote_event_id", "voter_id", "option"}
)

// jsonCell encodes a value as the JSON string stored inside a CSV cell.
// Nil slices become empty cells, matching how the standard represents NULL.
func jsonCell(v any) (string, error) {
	switch t := v.(type) {
	case []Identifier:
		if t == nil {
			return "", nil
		}
	case []Source:
		if t == nil {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapParse("json", "csv cell", err)
	}
	return string(b), nil
}

// CSVRow renders the person as a CSV record in PersonColumns order.
func (p Person) CSVRow() ([]string, error) {
	ids, err := jsonCell(p.Identifiers)
	if err != nil {
		return nil, err
	}
	srcs, err := jsonCell(p.Sources)
	if err != nil {
		return nil, err
	}
	return []string{p.ID, p.Name, p.GivenName, p.FamilyName, p.BirthDate, p.DeathDate, p.Gender, ids, srcs}, nil
}

// CSVRow renders the organization as a CSV record in OrganizationColumns order.
func (o Organization) CSVRow() ([]string, error) {
	ids, err := jsonCell(o.Identifiers)
	if err != nil {
		return nil, err
	}
	srcs, err := jsonCell(o.Sources)
	if err != nil {
		return nil, err
	}
	return []string{o.ID, o.Name, o.Classification, o.ParentID, o.FoundingDate, o.DissolutionDate, ids, srcs}, nil
}

// CSVRow renders the membership as a CSV record in MembershipColumns order.
func (m Membership) CSVRow() ([]string, error) {
	srcs, err := jsonCell(m.Sources)
	if err != nil {
		return nil, err
	}
	return []string{m.ID, m.PersonID, m.OrganizationID, m.StartDate, m.EndDate, srcs}, nil
}

// CSVRow renders the vote as a CSV record in VoteColumns order.
func (v Vote) CSVRow() ([]string, error) {
	return []string{v.VoteEventID, v.VoterID, v.Option}, nil
}

type csvRower interface {
	CSVRow() ([]string, error)
}

// WriteCSV writes header plus rows to path, creating parent directories.
func WriteCSV[T csvRower](path string, header []string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.WrapIO("write", path, err)
	}
	for _, row := range rows {
		record, err := row.CSVRow()
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return errors.WrapIO("write", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return errors.WrapIO("close", path, f.Close())
}

// WriteJSON writes v as indented UTF-8 JSON with a trailing newline, the
// format the committed analysis outputs and standardized JSON tables use.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WrapParse("json", path, err)
	}
	buf = append(buf, '\n')
	return errors.WrapIO("write", path, os.WriteFile(path, buf, constants.FilePermissions))
}

// WriteParquet writes rows as a single-row-group Parquet file.
func WriteParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}

	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return errors.WrapIO("close", path, err)
	}
	return errors.WrapIO("close", path, f.Close())
}

// ParquetAppender streams batches of rows into a Parquet file. Used for the
// votes table, which is too large to buffer.
type ParquetAppender[T any] struct {
	f *os.File
	w *parquet.GenericWriter[T]
}

// NewParquetAppender creates the output file and the writer.
func NewParquetAppender[T any](path string) (*ParquetAppender[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WrapIO("create", path, err)
	}
	return &ParquetAppender[T]{f: f, w: parquet.NewGenericWriter[T](f)}, nil
}

// Append writes one batch of rows.
func (a *ParquetAppender[T]) Append(rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := a.w.Write(rows); err != nil {
		return errors.WrapIO("write", a.f.Name(), err)
	}
	return nil
}

// Close flushes the Parquet footer and closes the file.
func (a *ParquetAppender[T]) Close() error {
	if err := a.w.Close(); err != nil {
		_ = a.f.Close()
		return errors.WrapIO("close", a.f.Name(), err)
	}
	return errors.WrapIO("close", a.f.Name(), a.f.Close())
}

// ReadParquet loads all rows of a Parquet file. Used when converting a
// downloaded snapshot back into CSV/JSON analysis inputs.
func ReadParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, errors.WrapParse("parquet", path, err)
	}
	return rows, nil
}
