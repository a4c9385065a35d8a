// Package unl reads PSP UNL table exports: pipe-delimited rows encoded in
// Windows-1250, where an empty field means NULL. The format has no quoting
// or escaping, so a plain split per line is the whole grammar.
package unl

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// ReadFile reads an entire UNL file into rows of columns. When wantCols > 0,
// every row must have exactly that many columns.
func ReadFile(path string, wantCols int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer f.Close() //nolint:errcheck

	var rows [][]string
	s := NewScanner(f, wantCols)
	s.path = path
	for s.Scan() {
		rows = append(rows, s.Row())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Scanner streams UNL rows without loading the whole file. Needed for the
// per-member vote files, which run to millions of rows.
type Scanner struct {
	scanner  *bufio.Scanner
	wantCols int
	path     string
	line     int
	row      []string
	err      error
}

// NewScanner returns a Scanner reading UNL rows from r. When wantCols > 0,
// rows with a different column count fail the scan.
func NewScanner(r io.Reader, wantCols int) *Scanner {
	decoded := charmap.Windows1250.NewDecoder().Reader(r)
	s := bufio.NewScanner(decoded)
	// Motion titles can be long; the default token limit is too small.
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Scanner{scanner: s, wantCols: wantCols}
}

// NewFileScanner opens path and returns a Scanner over it together with a
// closer for the underlying file.
func NewFileScanner(path string, wantCols int) (*Scanner, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WrapIO("open", path, err)
	}
	s := NewScanner(f, wantCols)
	s.path = path
	return s, f, nil
}

// Scan advances to the next non-empty row. It returns false at EOF or on the
// first malformed row; check Err afterwards.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if line == "" {
			continue
		}
		cols := strings.Split(line, "|")
		if s.wantCols > 0 && len(cols) != s.wantCols {
			s.err = &errors.ParseError{
				Format:  "unl",
				File:    s.path,
				Line:    s.line,
				Message: "unexpected column count",
			}
			return false
		}
		s.row = cols
		return true
	}
	if err := s.scanner.Err(); err != nil {
		s.err = errors.WrapParse("unl", s.path, err)
	}
	return false
}

// Row returns the most recently scanned row. The slice is valid until the
// next call to Scan.
func (s *Scanner) Row() []string {
	return s.row
}

// Err returns the first error encountered while scanning.
func (s *Scanner) Err() error {
	return s.err
}
