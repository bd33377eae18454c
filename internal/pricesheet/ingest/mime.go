package ingest

import (
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeCSV  = "text/csv"
)

func init() {
	ensureMimeType(".xlsx", mimeXLSX)
	ensureMimeType(".xls", mimeXLS)
	ensureMimeType(".csv", mimeCSV)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("ingest: failed to register MIME type for %s: %v", ext, err)
	}
}

// Format is a supported spreadsheet container.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// DetectFormat resolves the container from the file extension, falling back
// to the declared content type. Legacy binary .xls workbooks are rejected.
func DetectFormat(filename, contentType string) (Format, error) {
	typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if typ == "" {
		typ = contentType
	}
	base, _, err := mime.ParseMediaType(typ)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(typ))
	}

	switch base {
	case mimeXLSX:
		return FormatXLSX, nil
	case mimeCSV, "application/csv", "text/comma-separated-values":
		return FormatCSV, nil
	case mimeXLS:
		if strings.EqualFold(filepath.Ext(filename), ".csv") {
			return FormatCSV, nil
		}
		return "", shared.Validation("Legacy .xls workbooks are not supported, save the file as .xlsx")
	default:
		return "", shared.Validation("Only Excel (.xlsx) and CSV files are allowed")
	}
}
