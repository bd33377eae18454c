// Package ingest turns spreadsheet uploads into normalized rate records.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Grid is the first worksheet of a workbook as rows of cell text. Row 0 is
// the header row; rows may be ragged.
type Grid [][]string

// Headers returns the header row, or nil for an empty grid.
func (g Grid) Headers() []string {
	if len(g) == 0 {
		return nil
	}
	return g[0]
}

// DataRows returns every row after the header.
func (g Grid) DataRows() [][]string {
	if len(g) < 2 {
		return nil
	}
	return g[1:]
}

// Read decodes r in the given format.
func Read(r io.Reader, format Format) (Grid, error) {
	switch format {
	case FormatXLSX:
		return readXLSX(r)
	case FormatCSV:
		return readCSV(r)
	default:
		return nil, shared.Validation("unsupported spreadsheet format %q", format)
	}
}

// ReadBytes decodes an uploaded file, detecting its format from filename and
// contentType.
func ReadBytes(data []byte, filename, contentType string) (Grid, error) {
	format, err := DetectFormat(filename, contentType)
	if err != nil {
		return nil, err
	}
	return Read(bytes.NewReader(data), format)
}

// ReadFile decodes a spreadsheet from disk.
func ReadFile(path string) (Grid, error) {
	format, err := DetectFormat(path, "")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, format)
}

func readXLSX(r io.Reader) (Grid, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, shared.Validation("Could not read spreadsheet: %v", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, shared.Validation("Spreadsheet has no worksheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, shared.Validation("Could not read worksheet %q: %v", sheets[0], err)
	}
	return Grid(rows), nil
}

func readCSV(r io.Reader) (Grid, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, shared.Validation("Could not read CSV: %v", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return Grid(rows), nil
}
