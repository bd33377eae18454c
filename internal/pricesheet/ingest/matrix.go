package ingest

import (
	"fmt"
	"strings"
)

// MatrixOptions configures ParseMatrix.
type MatrixOptions struct {
	// ServiceType prefixes generated item names, e.g. "FEDEX".
	ServiceType string
	Currency    string
}

// ParseMatrix reads a carrier rate card laid out as countries down the first
// column and weight brackets across the header row. Each positive cell
// becomes one record named "<service> - <country> - <weight>".
func ParseMatrix(grid Grid, opts MatrixOptions) Result {
	res := Result{Columns: emptyColumns()}
	weights := weightLabels(grid.Headers())

	for i, row := range grid.DataRows() {
		if blank(row) {
			continue
		}
		rowNum := i + 2
		country := cell(row, 0)
		if country == "" {
			res.Skipped++
			continue
		}

		added := 0
		for col, weight := range weights {
			if weight == "" {
				continue
			}
			rate := NormalizeRate(cell(row, col))
			if rate <= 0 {
				continue
			}
			res.Records = append(res.Records, Record{
				Row:         rowNum,
				ItemName:    matrixItemName(opts.ServiceType, country, weight),
				Weight:      weight,
				Rate:        Round(rate),
				Currency:    opts.Currency,
				Destination: country,
				Country:     country,
				ServiceType: opts.ServiceType,
			})
			added++
		}
		if added == 0 {
			res.Skipped++
		}
	}
	return res
}

// weightLabels turns header cells into "<w> kg" labels. Column 0 and
// non-weight headers map to "". A trailing '+' marks an open-ended bracket.
func weightLabels(headers []string) []string {
	labels := make([]string, len(headers))
	for i, h := range headers {
		if i == 0 {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(h))
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "kgs"), "kg"))
		open := strings.HasSuffix(s, "+")
		s = strings.TrimSpace(strings.TrimSuffix(s, "+"))
		if parseStrictRate(s) <= 0 {
			continue
		}
		if open {
			labels[i] = s + "+ kg"
		} else {
			labels[i] = s + " kg"
		}
	}
	return labels
}

func matrixItemName(service, country, weight string) string {
	if service == "" {
		return fmt.Sprintf("%s - %s", country, weight)
	}
	return fmt.Sprintf("%s - %s - %s", service, country, weight)
}
