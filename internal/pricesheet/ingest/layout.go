package ingest

import (
	"strings"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Layout names the shape of an uploaded grid.
type Layout string

const (
	// LayoutRows is one rate item per row under a header row.
	LayoutRows Layout = "rows"
	// LayoutMatrix is a carrier rate card, countries by weight brackets.
	LayoutMatrix Layout = "matrix"
)

// ParseLayout reads a layout name; empty means LayoutRows.
func ParseLayout(raw string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LayoutRows:
		return LayoutRows, nil
	case LayoutMatrix:
		return LayoutMatrix, nil
	default:
		return "", shared.Validation("layout must be %q or %q", LayoutRows, LayoutMatrix)
	}
}

// Options selects the parser for a grid.
type Options struct {
	Layout Layout
	Policy Policy
	// ServiceType names the carrier for matrix layouts.
	ServiceType string
}

// Apply parses grid according to the options.
func (o Options) Apply(grid Grid) Result {
	if o.Layout == LayoutMatrix {
		return ParseMatrix(grid, MatrixOptions{ServiceType: strings.TrimSpace(o.ServiceType)})
	}
	return Parse(grid, o.Policy)
}
