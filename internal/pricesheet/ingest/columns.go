package ingest

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Field is a semantic column of a rate spreadsheet.
type Field int

const (
	FieldItemName Field = iota
	FieldHSNCode
	FieldWeight
	FieldRate
	FieldDestination
	FieldCountry
	FieldServiceType
	fieldCount
)

// NotFound marks a field with no matching header.
const NotFound = -1

var fieldNames = [fieldCount]string{"itemName", "hsn", "weight", "rate", "destination", "country", "service"}

// Keywords are matched as substrings of the lower-cased header text.
var fieldKeywords = [fieldCount][]string{
	FieldItemName:    {"item", "product", "description", "name"},
	FieldHSNCode:     {"hsn"},
	FieldWeight:      {"weight", "kg"},
	FieldRate:        {"rate", "price", "amount", "cost"},
	FieldDestination: {"destination"},
	FieldCountry:     {"country", "nation"},
	FieldServiceType: {"service"},
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// Fields lists every semantic field in inference order.
func Fields() []Field {
	out := make([]Field, 0, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		out = append(out, f)
	}
	return out
}

// Columns maps each field to its header index, or NotFound.
type Columns [fieldCount]int

// Index returns the column index for f.
func (c Columns) Index(f Field) int {
	if f < 0 || f >= fieldCount {
		return NotFound
	}
	return c[f]
}

// Map renders the inferred indices keyed by field name, for logging.
func (c Columns) Map() map[string]int {
	out := make(map[string]int, fieldCount)
	for _, f := range Fields() {
		out[f.String()] = c[f]
	}
	return out
}

func emptyColumns() Columns {
	var c Columns
	for i := range c {
		c[i] = NotFound
	}
	return c
}

// InferColumns resolves every field to the first header containing one of
// its keywords. Fields are scanned independently: a header matched by one
// field is still a candidate for the others.
func InferColumns(headers []string) Columns {
	lower := cases.Lower(language.Und)
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = lower.String(strings.TrimSpace(h))
	}

	cols := emptyColumns()
	for _, f := range Fields() {
		cols[f] = firstMatch(normalized, fieldKeywords[f])
	}
	return cols
}

func firstMatch(headers []string, keywords []string) int {
	for i, h := range headers {
		if h == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(h, kw) {
				return i
			}
		}
	}
	return NotFound
}

// cell returns the trimmed value at idx, or "" when idx is NotFound or
// outside the row.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
