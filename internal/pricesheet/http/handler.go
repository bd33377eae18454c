// Package pricesheethttp exposes the price sheet API over HTTP.
package pricesheethttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/platform/httpx"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// DefaultMaxUploadBytes caps spreadsheet uploads when Options leaves it unset.
const DefaultMaxUploadBytes int64 = 10 << 20

// Options tunes the handler.
type Options struct {
	MaxUploadBytes int64
	// UploadsPerMinute limits uploads per caller; zero disables the limit.
	UploadsPerMinute int
	Debug            bool
	Metrics          *jobmetrics.Metrics
}

// Handler serves /api/price-sheets.
type Handler struct {
	logger    *slog.Logger
	service   *pricesheet.Service
	errors    httpx.ErrorWriter
	maxUpload int64
	uploads   int
	metrics   *jobmetrics.Metrics
}

// NewHandler constructs the price sheet HTTP handler.
func NewHandler(logger *slog.Logger, service *pricesheet.Service, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{
		logger:    logger,
		service:   service,
		errors:    httpx.ErrorWriter{Logger: logger, Debug: opts.Debug},
		maxUpload: maxUpload,
		uploads:   opts.UploadsPerMinute,
		metrics:   opts.Metrics,
	}
}

type sheetResponse struct {
	Message    string                `json:"message"`
	PriceSheet pricesheet.PriceSheet `json:"priceSheet"`
}

type uploadResponse struct {
	Message     string                `json:"message"`
	PriceSheet  pricesheet.PriceSheet `json:"priceSheet"`
	SkippedRows int                   `json:"skippedRows"`
}

type itemResponse struct {
	Message string              `json:"message"`
	Item    pricesheet.RateItem `json:"item"`
}

type bulkResponse struct {
	Message    string   `json:"message"`
	AddedCount int      `json:"addedCount"`
	Errors     []string `json:"errors,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := pricesheet.ListFilter{VendorID: vendorParam(r)}

	// Inactive sheets stay hidden unless the caller asks for them.
	if raw := strings.TrimSpace(q.Get("isActive")); raw != "all" {
		if raw == "" {
			active := true
			filter.IsActive = &active
		} else {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				h.errors.Respond(w, r, shared.Validation("isActive must be true, false or all"))
				return
			}
			filter.IsActive = &v
		}
	}
	if raw := strings.TrimSpace(q.Get("isDefault")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.errors.Respond(w, r, shared.Validation("isDefault must be true or false"))
			return
		}
		filter.IsDefault = &v
	}

	page, perPage := atoi(q.Get("page")), atoi(q.Get("limit"))
	paged := page > 0 || perPage > 0
	var pg shared.Pagination
	if paged {
		pg = shared.NewPagination(page, perPage, 0)
		filter.Limit, filter.Offset = pg.PerPage, pg.Offset()
	}

	sheets, total, err := h.service.ListForVendor(r.Context(), filter)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	if !paged {
		pg = shared.Pagination{Page: 1, PerPage: total}
	}
	if sheets == nil {
		sheets = []pricesheet.PriceSheet{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.Header().Set("X-Page", strconv.Itoa(pg.Page))
	w.Header().Set("X-Per-Page", strconv.Itoa(pg.PerPage))
	httpx.JSON(w, http.StatusOK, sheets)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.service.GetActiveForVendor(r.Context(), vendorParam(r))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", ingest.TemplateContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ingest.TemplateFileName+`"`)
	if err := ingest.WriteTemplate(w); err != nil {
		h.logger.Error("render price sheet template", slog.Any("error", err))
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	sheet, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req pricesheet.CreateSheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	sheet, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sheetResponse{Message: "Price sheet created successfully", PriceSheet: sheet})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	var req pricesheet.UpdateSheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	sheet, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheetResponse{Message: "Price sheet updated successfully", PriceSheet: sheet})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Price sheet deleted successfully")
}

func (h *Handler) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	sheet, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheetResponse{Message: "Default price sheet updated", PriceSheet: sheet})
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	var in pricesheet.ItemInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	sheet, err := h.service.AddItem(r.Context(), id, in)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	var added pricesheet.RateItem
	if n := len(sheet.Items); n > 0 {
		added = sheet.Items[n-1]
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Message: "Item added successfully", Item: added})
}

func (h *Handler) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	var req pricesheet.BulkItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	result, err := h.service.BulkAddItems(r.Context(), id, req.Items)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bulkResponse{
		Message:    "Successfully added " + strconv.Itoa(result.AddedCount) + " item(s)",
		AddedCount: result.AddedCount,
		Errors:     result.Errors,
	})
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var patch pricesheet.ItemPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	sheet, err := h.service.UpdateItem(r.Context(), id, itemID, patch)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	item, _ := sheet.Item(itemID)
	httpx.JSON(w, http.StatusOK, itemResponse{Message: "Item updated successfully", Item: item})
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sheetID(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.DeleteItem(r.Context(), id, itemID); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Item deleted successfully")
}

// sheetID parses the {id} path parameter. Malformed ids cannot name a sheet,
// so they answer 404 like any unknown id.
func (h *Handler) sheetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.Respond(w, r, shared.NotFound("Price sheet not found"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		h.errors.Respond(w, r, shared.NotFound("Item not found"))
		return uuid.Nil, false
	}
	return id, true
}

// vendorParam prefers the vendorId query parameter over the vendor header.
func vendorParam(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("vendorId")); v != "" {
		return v
	}
	return shared.VendorFromContext(r.Context())
}

func atoi(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
