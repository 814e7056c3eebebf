// Package input loads users and prompts from spreadsheet files.
//
// The real format of a file is decided by its leading bytes, not its
// extension: anything starting with the ZIP local-file-header signature is
// read as an XLSX workbook (every sheet, in sheet order) and everything else
// is read as delimited text.
package input

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
)

// zipMagic is the ZIP local file header signature ("PK\x03\x04").
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Format is the detected file format.
type Format string

// Supported formats.
const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Row is one non-blank row of a table. Cells are trimmed.
type Row struct {
	// Index is the 1-based row number within the sheet or file.
	Index int
	Cells []string
}

// Cell returns the cell at column i, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Table is one sheet of a workbook, or a whole CSV file.
type Table struct {
	// Sheet is the worksheet name; empty for CSV.
	Sheet  string
	Header []string
	// HeaderIndex is the 1-based row number of Header.
	HeaderIndex int
	Rows        []Row
}

// DetectFormat sniffs the format of the file at path.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", &ParseError{Path: path, Err: err}
	}
	if n == len(zipMagic) && bytes.Equal(head, zipMagic) {
		return FormatXLSX, nil
	}
	return FormatCSV, nil
}

// ReadTables reads every table in the file at path. The first non-blank row
// of each table is its header; blank rows are dropped.
func ReadTables(path string) ([]Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var tables []Table
	switch format {
	case FormatXLSX:
		tables, err = readXLSX(path)
	default:
		tables, err = readCSV(path)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return tables, nil
}

// newTable splits raw rows into header and body, trimming cells and
// skipping whitespace-only rows.
func newTable(sheet string, raw []Row) Table {
	t := Table{Sheet: sheet}
	for _, r := range raw {
		trimmed := make([]string, len(r.Cells))
		blank := true
		for j, c := range r.Cells {
			trimmed[j] = strings.TrimSpace(c)
			if trimmed[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if t.Header == nil {
			t.Header = trimmed
			t.HeaderIndex = r.Index
			continue
		}
		t.Rows = append(t.Rows, Row{Index: r.Index, Cells: trimmed})
	}
	return t
}

// column returns the index of the first candidate present in header,
// comparing case-insensitively. Candidates are tried in order.
func column(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, h := range header {
			if strings.EqualFold(h, cand) {
				return i
			}
		}
	}
	return -1
}

// rowMap returns the non-empty cells of r keyed by header name.
func rowMap(header []string, r Row) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if v := r.Cell(i); v != "" {
			m[h] = v
		}
	}
	return m
}
