package pricesheethttp

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/pricesheettest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

type fixture struct {
	repo   *pricesheettest.Repository
	router http.Handler
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	repo := pricesheettest.New()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	svc := pricesheet.NewService(repo, nil, nil, pricesheet.WithClock(clock))
	if opts.Metrics == nil {
		opts.Metrics = jobmetrics.NewMetrics(prometheus.NewRegistry())
	}
	h := NewHandler(nil, svc, opts)

	r := chi.NewRouter()
	r.Use(shared.VendorMiddleware)
	r.Route("/api/price-sheets", h.MountRoutes)
	return fixture{repo: repo, router: r}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f fixture) upload(t *testing.T, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/price-sheets/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type errorBody struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func TestUploadKeepsOnlyNamedPositiveRows(t *testing.T) {
	f := newFixture(t, Options{})
	data := workbook(t, [][]any{
		{"Item", "Rate", "Country"},
		{"Widget", "100", "USA"},
		{"", "50", "UK"},
		{"Gadget", "0", "IN"},
	})

	rr := f.upload(t, "rates.xlsx", data, map[string]string{"sheetName": "Export rates"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode[uploadResponse](t, rr)
	assert.Equal(t, "Price sheet uploaded successfully", body.Message)
	assert.Equal(t, 2, body.SkippedRows)
	sheet := body.PriceSheet
	assert.Equal(t, "Export rates", sheet.SheetName)
	assert.Equal(t, "rates.xlsx", sheet.OriginalFileName)
	require.Len(t, sheet.Items, 1)
	assert.Equal(t, "Widget", sheet.Items[0].ItemName)
	assert.Equal(t, 100.0, sheet.Items[0].Rate)
	assert.Equal(t, "USA", sheet.Items[0].Country)
	assert.Equal(t, "INR", sheet.Items[0].Currency)
	assert.NotNil(t, sheet.AssignedVendors)
}

func TestUploadDefaultNameAndVendors(t *testing.T) {
	f := newFixture(t, Options{})
	data := workbook(t, [][]any{{"Product", "Price"}, {"Box", "₹1,500.50"}})

	rr := f.upload(t, "box.xlsx", data, map[string]string{
		"assignedVendors": "v-1, v-2",
		"isDefault":       "true",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	sheet := decode[uploadResponse](t, rr).PriceSheet
	assert.Equal(t, "Price Sheet 2025-03-01", sheet.SheetName)
	assert.True(t, sheet.IsDefault)
	require.Len(t, sheet.AssignedVendors, 2)
	assert.Equal(t, "v-1", sheet.AssignedVendors[0].ID)
	assert.Equal(t, 1500.5, sheet.Items[0].Rate)
}

func TestUploadNoValidItemsStoresNothing(t *testing.T) {
	f := newFixture(t, Options{})
	data := workbook(t, [][]any{{"Item", "Rate"}, {"Widget", "abc"}, {"", "10"}})

	rr := f.upload(t, "bad.xlsx", data, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No valid items found in the Excel file", decode[errorBody](t, rr).Message)

	list := f.do(t, http.MethodGet, "/api/price-sheets?isActive=all", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, "0", list.Header().Get("X-Total-Count"))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 1024})
	data := workbook(t, [][]any{{"Item", "Rate"}, {strings.Repeat("x", 4096), "10"}})
	require.Greater(t, len(data), 1024)

	rr := f.upload(t, "big.xlsx", data, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "File too large", decode[errorBody](t, rr).Message)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.upload(t, "", nil, map[string]string{"sheetName": "x"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Excel file is required", decode[errorBody](t, rr).Message)

	rr = f.upload(t, "old.xls", []byte("binary"), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[errorBody](t, rr).Message, ".xls")

	rr = f.upload(t, "notes.txt", []byte("hello"), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	data := workbook(t, [][]any{{"Item", "Rate"}, {"Widget", "10"}})
	rr = f.upload(t, "rates.xlsx", data, map[string]string{"layout": "diagonal"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadCSV(t *testing.T) {
	f := newFixture(t, Options{})
	csv := "Item Name,Rate,Destination\nParcel,\"1,200\",Dubai\n"

	rr := f.upload(t, "rates.csv", []byte(csv), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	items := decode[uploadResponse](t, rr).PriceSheet.Items
	require.Len(t, items, 1)
	assert.Equal(t, 1200.0, items[0].Rate)
	assert.Equal(t, "Dubai", items[0].Destination)
}

func TestUploadMatrixLayout(t *testing.T) {
	f := newFixture(t, Options{})
	data := workbook(t, [][]any{
		{"Country", "0.5", "1", "21+"},
		{"USA", "1200", "2000+GST", "450"},
		{"UK", "", "", ""},
	})

	rr := f.upload(t, "fedex.xlsx", data, map[string]string{"layout": "matrix", "serviceType": "FEDEX"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode[uploadResponse](t, rr)
	require.Len(t, body.PriceSheet.Items, 3)
	assert.Equal(t, "FEDEX - USA - 0.5 kg", body.PriceSheet.Items[0].ItemName)
	assert.Equal(t, 2000.0, body.PriceSheet.Items[1].Rate)
	assert.Equal(t, "21+ kg", body.PriceSheet.Items[2].Weight)
	assert.Equal(t, 1, body.SkippedRows)
}

func TestCreateGetAndMissing(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{
		"sheetName": "  Domestic  ",
		"items":     []map[string]any{{"itemName": "Doc", "rate": "250"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[sheetResponse](t, rr).PriceSheet
	assert.Equal(t, "Domestic", created.SheetName)

	rr = f.do(t, http.MethodGet, "/api/price-sheets/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[pricesheet.PriceSheet](t, rr)
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 250.0, got.Items[0].Rate)

	rr = f.do(t, http.MethodGet, "/api/price-sheets/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Price sheet not found", decode[errorBody](t, rr).Message)

	rr = f.do(t, http.MethodGet, "/api/price-sheets/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{"sheetName": "   "})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Sheet name is required", decode[errorBody](t, rr).Message)

	rr = f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{"sheetName": "x", "owner": "me"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListVisibilityAndPaging(t *testing.T) {
	f := newFixture(t, Options{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	legacy := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "legacy", IsActive: true, CreatedAt: base}
	open := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "open", IsActive: true, AssignedVendors: []pricesheet.UserRef{}, CreatedAt: base.Add(time.Hour)}
	mine := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "mine", IsActive: true, AssignedVendors: []pricesheet.UserRef{{ID: "v1"}}, CreatedAt: base.Add(2 * time.Hour)}
	theirs := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "theirs", IsActive: true, AssignedVendors: []pricesheet.UserRef{{ID: "v2"}}, CreatedAt: base.Add(3 * time.Hour)}
	retired := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "retired", IsActive: false, CreatedAt: base.Add(4 * time.Hour)}
	f.repo.Seed(legacy, open, mine, theirs, retired)

	rr := f.do(t, http.MethodGet, "/api/price-sheets?vendorId=v1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	names := sheetNames(decode[[]pricesheet.PriceSheet](t, rr))
	assert.Equal(t, []string{"mine", "open", "legacy"}, names)
	assert.Equal(t, "3", rr.Header().Get("X-Total-Count"))

	rr = f.do(t, http.MethodGet, "/api/price-sheets?isActive=all&page=2&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"mine", "open"}, sheetNames(decode[[]pricesheet.PriceSheet](t, rr)))
	assert.Equal(t, "5", rr.Header().Get("X-Total-Count"))
	assert.Equal(t, "2", rr.Header().Get("X-Page"))
	assert.Equal(t, "2", rr.Header().Get("X-Per-Page"))

	rr = f.do(t, http.MethodGet, "/api/price-sheets?isActive=false", nil)
	assert.Equal(t, []string{"retired"}, sheetNames(decode[[]pricesheet.PriceSheet](t, rr)))

	rr = f.do(t, http.MethodGet, "/api/price-sheets?isActive=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestActiveSheetForVendor(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/api/price-sheets/active", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No active price sheet found", decode[errorBody](t, rr).Message)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	general := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "general", IsActive: true, IsDefault: true, AssignedVendors: []pricesheet.UserRef{}, CreatedAt: base}
	special := pricesheet.PriceSheet{ID: uuid.New(), SheetName: "special", IsActive: true, AssignedVendors: []pricesheet.UserRef{{ID: "v9"}}, CreatedAt: base.Add(time.Hour)}
	f.repo.Seed(general, special)

	rr = f.do(t, http.MethodGet, "/api/price-sheets/active?vendorId=v9", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "general", decode[pricesheet.PriceSheet](t, rr).SheetName)

	req := httptest.NewRequest(http.MethodGet, "/api/price-sheets/active", nil)
	req.Header.Set(shared.VendorHeader, "v9")
	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
}

func TestItemEndpoints(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{"sheetName": "Items"})
	require.Equal(t, http.StatusCreated, rr.Code)
	sheetID := decode[sheetResponse](t, rr).PriceSheet.ID.String()
	base := "/api/price-sheets/" + sheetID

	rr = f.do(t, http.MethodPost, base+"/items", map[string]any{"itemName": "Doc", "rate": 120, "country": "USA"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	item := decode[itemResponse](t, rr).Item
	assert.Equal(t, "Doc", item.ItemName)

	rr = f.do(t, http.MethodPost, base+"/items", map[string]any{"itemName": "Doc"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Item name and rate are required", decode[errorBody](t, rr).Message)

	rr = f.do(t, http.MethodPost, base+"/items/bulk", map[string]any{"items": []map[string]any{
		{"itemName": "A", "rate": 10},
		{"itemName": "", "rate": 10},
		{"itemName": "C", "rate": "-5"},
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	bulk := decode[bulkResponse](t, rr)
	assert.Equal(t, 1, bulk.AddedCount)
	assert.Equal(t, "Successfully added 1 item(s)", bulk.Message)
	assert.Equal(t, []string{"Row 2: Item name and rate are required", "Row 3: Invalid rate value"}, bulk.Errors)

	rr = f.do(t, http.MethodPost, base+"/items/bulk", map[string]any{"items": []map[string]any{{"itemName": "", "rate": 1}}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	failed := decode[errorBody](t, rr)
	assert.Equal(t, "No valid items to add", failed.Message)
	assert.Len(t, failed.Errors, 1)

	rr = f.do(t, http.MethodPut, base+"/items/"+item.ID.String(), map[string]any{"rate": "₹140", "country": ""})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[itemResponse](t, rr).Item
	assert.Equal(t, 140.0, updated.Rate)
	assert.Empty(t, updated.Country)
	assert.Equal(t, "Doc", updated.ItemName)

	rr = f.do(t, http.MethodPut, base+"/items/"+uuid.NewString(), map[string]any{"rate": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, base+"/items/"+item.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, base, nil)
	items := decode[pricesheet.PriceSheet](t, rr).Items
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].ItemName)
}

func TestSheetLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	first := decode[sheetResponse](t, f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{"sheetName": "One", "isDefault": true})).PriceSheet
	second := decode[sheetResponse](t, f.do(t, http.MethodPost, "/api/price-sheets", map[string]any{"sheetName": "Two"})).PriceSheet
	require.True(t, first.IsDefault)

	rr := f.do(t, http.MethodPost, "/api/price-sheets/"+second.ID.String()+"/default", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[sheetResponse](t, rr).PriceSheet.IsDefault)
	assert.Equal(t, []uuid.UUID{second.ID}, f.repo.Defaults())

	rr = f.do(t, http.MethodPut, "/api/price-sheets/"+first.ID.String(), map[string]any{
		"description":     "retired",
		"isActive":        false,
		"assignedVendors": []string{"v3"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[sheetResponse](t, rr).PriceSheet
	assert.Equal(t, "retired", updated.Description)
	assert.False(t, updated.IsActive)
	require.Len(t, updated.AssignedVendors, 1)

	rr = f.do(t, http.MethodDelete, "/api/price-sheets/"+first.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Price sheet deleted successfully", decode[errorBody](t, rr).Message)

	rr = f.do(t, http.MethodDelete, "/api/price-sheets/"+first.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTemplateDownload(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/api/price-sheets/template", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ingest.TemplateContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ingest.TemplateFileName)

	grid, err := ingest.ReadBytes(rr.Body.Bytes(), ingest.TemplateFileName, "")
	require.NoError(t, err)
	res := ingest.Parse(grid, ingest.StrictPolicy)
	require.NoError(t, res.Err())
	assert.Len(t, res.Records, 1)
}

func TestUploadRateLimit(t *testing.T) {
	f := newFixture(t, Options{UploadsPerMinute: 1})
	data := workbook(t, [][]any{{"Item", "Rate"}, {"Widget", "10"}})

	require.Equal(t, http.StatusCreated, f.upload(t, "a.xlsx", data, nil).Code)
	rr := f.upload(t, "b.xlsx", data, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func sheetNames(sheets []pricesheet.PriceSheet) []string {
	names := make([]string, 0, len(sheets))
	for _, s := range sheets {
		names = append(names, s.SheetName)
	}
	return names
}
