package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

func TestParseLayout(t *testing.T) {
	for raw, want := range map[string]Layout{"": LayoutRows, "ROWS": LayoutRows, " matrix ": LayoutMatrix} {
		got, err := ParseLayout(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseLayout("pivot")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestOptionsApply(t *testing.T) {
	grid := Grid{{"Country", "1"}, {"USA", "900"}}

	matrix := Options{Layout: LayoutMatrix, ServiceType: " DHL "}.Apply(grid)
	require.Len(t, matrix.Records, 1)
	assert.Equal(t, "DHL - USA - 1 kg", matrix.Records[0].ItemName)

	rows := Options{Layout: LayoutRows, Policy: StrictPolicy}.Apply(Grid{{"Item", "Rate"}, {"Doc", "5"}})
	require.Len(t, rows.Records, 1)
	assert.Equal(t, 5.0, rows.Records[0].Rate)
}
