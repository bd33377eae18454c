package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	// TemplateContentType is the media type of the generated template.
	TemplateContentType = mimeXLSX
	TemplateFileName    = "price-sheet-template.xlsx"
)

// TemplateHeaders is the header row of the downloadable upload template.
// Country precedes Destination because "destination" contains "nation".
var TemplateHeaders = []string{
	"Item Name", "HSN Code", "Weight (kg)", "Rate", "Country", "Destination", "Service Type",
}

var templateSample = []any{"Documents up to 0.5 kg", "4911", "0.5", 1250, "USA", "New York", "EXPRESS"}

// WriteTemplate renders an .xlsx upload template with one sample row.
func WriteTemplate(w io.Writer) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	sheet := "Rates"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("ingest: rename template sheet: %w", err)
	}

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("ingest: template style: %w", err)
	}

	for i, h := range TemplateHeaders {
		ref, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := book.SetCellValue(sheet, ref, h); err != nil {
			return fmt.Errorf("ingest: template header: %w", err)
		}
	}
	for i, v := range templateSample {
		ref, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := book.SetCellValue(sheet, ref, v); err != nil {
			return fmt.Errorf("ingest: template sample: %w", err)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(TemplateHeaders))
	if err := book.SetCellStyle(sheet, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("ingest: template header style: %w", err)
	}
	if err := book.SetColWidth(sheet, "A", last, 20); err != nil {
		return fmt.Errorf("ingest: template widths: %w", err)
	}

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("ingest: write template: %w", err)
	}
	return nil
}
