package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/pricesheettest"
)

func saveWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	require.NoError(t, book.SaveAs(path))
	return path
}

var sampleRows = [][]any{
	{"Item Name", "Rate", "Country", "Service Type"},
	{"Docs 0.5kg", "₹1,250", "USA", "EXPRESS"},
	{"Docs 1kg", "2000+GST", "USA", "ECONOMY"},
	{"Parcel", "1800", "UK", "EXPRESS"},
	{"", "50", "UK", ""},
}

func newImportCLI() (*ImportCLI, *pricesheettest.Repository, *pricesheet.Service) {
	repo := pricesheettest.New()
	svc := pricesheet.NewService(repo, nil, nil)
	return NewImportCLI(svc, jobmetrics.NewMetrics(prometheus.NewRegistry())), repo, svc
}

func TestImportCommandCreatesThenReplaces(t *testing.T) {
	cli, _, svc := newImportCLI()
	path := saveWorkbook(t, sampleRows)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), ImportOptions{
		File: path, SheetName: "Courier Rates", IsDefault: true, JSONOutput: true,
		Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code, stderr.String())

	var first ImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &first))
	require.True(t, first.Created)
	require.Equal(t, 3, first.Items)
	require.Equal(t, 1, first.Skipped)
	require.Equal(t, 2, first.Countries)
	require.Equal(t, 2, first.Services)
	require.Equal(t, 1, first.Columns["rate"])

	replacement := saveWorkbook(t, [][]any{{"Item", "Rate"}, {"Flat", "99"}})
	stdout.Reset()
	code = cli.ImportCommand(context.Background(), ImportOptions{
		File: replacement, SheetName: "Courier Rates", JSONOutput: true, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code, stderr.String())

	var second ImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &second))
	require.False(t, second.Created)
	require.Equal(t, first.SheetID, second.SheetID)
	require.Equal(t, 1, second.Items)

	sheet, err := svc.GetActiveForVendor(context.Background(), "")
	require.NoError(t, err)
	require.True(t, sheet.IsDefault)
	require.Len(t, sheet.Items, 1)
	require.Equal(t, "Flat", sheet.Items[0].ItemName)
}

func TestImportCommandDryRunStoresNothing(t *testing.T) {
	cli, repo, _ := newImportCLI()
	path := saveWorkbook(t, sampleRows)

	stdout := new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), ImportOptions{
		File: path, SheetName: "Preview", DryRun: true, Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "Dry run")
	require.Contains(t, stdout.String(), "Items: 3")
	require.Zero(t, repo.TxCalls)
}

func TestImportCommandLenientReportsFallbacks(t *testing.T) {
	cli, _, _ := newImportCLI()
	path := saveWorkbook(t, [][]any{
		{"Item", "Rate", "Remarks"},
		{"Docs", "see note", "650"},
	})

	stdout := new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), ImportOptions{
		File: path, SheetName: "Lenient", Lenient: true, DryRun: true, Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "row 2: rate 650.00 taken from column 2")
}

func TestImportCommandErrors(t *testing.T) {
	cli, _, _ := newImportCLI()
	empty := saveWorkbook(t, [][]any{{"Item", "Rate"}, {"Docs", "0"}})
	csvPath := filepath.Join(t.TempDir(), "rates.xls")
	require.NoError(t, os.WriteFile(csvPath, []byte("x"), 0o600))

	cases := []struct {
		name string
		opts ImportOptions
		code int
		msg  string
	}{
		{"missing file flag", ImportOptions{SheetName: "x"}, 1, "--file is required"},
		{"missing name flag", ImportOptions{File: empty}, 1, "--name is required"},
		{"bad layout", ImportOptions{File: empty, SheetName: "x", Layout: "pivot"}, 1, "layout must be"},
		{"legacy xls", ImportOptions{File: csvPath, SheetName: "x"}, 1, ".xls"},
		{"no valid items", ImportOptions{File: empty, SheetName: "x"}, 2, "No valid items"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stderr := new(bytes.Buffer)
			tc.opts.Stdout, tc.opts.Stderr = new(bytes.Buffer), stderr
			require.Equal(t, tc.code, cli.ImportCommand(context.Background(), tc.opts))
			require.Contains(t, stderr.String(), tc.msg)
		})
	}
}
