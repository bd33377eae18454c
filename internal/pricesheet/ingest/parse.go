package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Record is one accepted spreadsheet row, ready to become a rate item.
type Record struct {
	// Row is the 1-based spreadsheet row the record came from.
	Row         int
	ItemName    string
	HSNCode     string
	Weight      string
	Rate        float64
	Currency    string
	Destination string
	Country     string
	CountryCode string
	ServiceType string
}

// Policy controls how strictly rows are accepted.
type Policy struct {
	// RequirePositiveRate drops rows whose rate is zero after normalization.
	RequirePositiveRate bool
	// FallbackScan looks for a numeric rate in the columns around the rate
	// column when the rate cell itself yields nothing.
	FallbackScan bool
}

var (
	// StrictPolicy accepts only rows with a name and a positive rate in the
	// rate column. Used by uploads.
	StrictPolicy = Policy{RequirePositiveRate: true}
	// LenientPolicy keeps rows with a zero rate and recovers misaligned
	// rates from neighbouring cells. Used by the offline importer.
	LenientPolicy = Policy{FallbackScan: true}
)

// fallbackRadius is how many columns either side of the rate column are scanned.
const fallbackRadius = 2

// Fallback records a rate taken from a neighbouring column.
type Fallback struct {
	Row    int     `json:"row"`
	Column int     `json:"column"`
	Rate   float64 `json:"rate"`
}

// Result is the outcome of parsing a grid.
type Result struct {
	Columns   Columns
	Records   []Record
	Skipped   int
	Fallbacks []Fallback
}

// Err reports ErrNoValidItems when nothing was accepted.
func (r Result) Err() error {
	if len(r.Records) == 0 {
		return shared.NoValidItems("No valid items found in the Excel file", nil)
	}
	return nil
}

// Parse maps the grid's header row to fields and converts each data row.
// Blank rows are ignored; rows without an item name, or failing the policy's
// rate rule, are counted as skipped.
func Parse(grid Grid, policy Policy) Result {
	res := Result{Columns: InferColumns(grid.Headers())}
	cols := res.Columns

	for i, row := range grid.DataRows() {
		if blank(row) {
			continue
		}
		rowNum := i + 2

		name := cell(row, cols[FieldItemName])
		if name == "" {
			res.Skipped++
			continue
		}

		rate := NormalizeRate(cell(row, cols[FieldRate]))
		if rate == 0 && policy.FallbackScan && cols[FieldRate] != NotFound {
			if col, v, ok := scanNeighbours(row, cols); ok {
				rate = v
				res.Fallbacks = append(res.Fallbacks, Fallback{Row: rowNum, Column: col, Rate: v})
			}
		}
		if rate <= 0 && policy.RequirePositiveRate {
			res.Skipped++
			continue
		}

		res.Records = append(res.Records, Record{
			Row:         rowNum,
			ItemName:    name,
			HSNCode:     cell(row, cols[FieldHSNCode]),
			Weight:      cell(row, cols[FieldWeight]),
			Rate:        Round(rate),
			Destination: cell(row, cols[FieldDestination]),
			Country:     cell(row, cols[FieldCountry]),
			ServiceType: cell(row, cols[FieldServiceType]),
		})
	}
	return res
}

// scanNeighbours returns the first strictly numeric positive cell within
// fallbackRadius of the rate column, ignoring the name, HSN and weight columns.
func scanNeighbours(row []string, cols Columns) (int, float64, bool) {
	rateIdx := cols[FieldRate]
	lo := max(0, rateIdx-fallbackRadius)
	hi := min(len(row)-1, rateIdx+fallbackRadius)
	for col := lo; col <= hi; col++ {
		if col == rateIdx || col == cols[FieldItemName] || col == cols[FieldHSNCode] || col == cols[FieldWeight] {
			continue
		}
		if v := parseStrictRate(row[col]); v > 0 {
			return col, v, true
		}
	}
	return 0, 0, false
}

// Round fixes a rate to two decimal places.
func Round(rate float64) float64 {
	f, _ := decimal.NewFromFloat(rate).Round(2).Float64()
	return f
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
