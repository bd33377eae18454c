package pricesheethttp

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/vzcourier/vzcourier-backend/internal/platform/httpx"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

const (
	// formOverhead is allowed on top of the file limit for boundaries and
	// the text fields sent alongside the file.
	formOverhead  = 64 << 10
	uploadMemory  = 32 << 20
	uploadSource  = "upload"
	fileFieldName = "file"
)

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.maxUpload + formOverhead
	if r.ContentLength > limit {
		h.errors.Respond(w, r, &http.MaxBytesError{Limit: h.maxUpload})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		h.errors.Respond(w, r, formError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(fileFieldName)
	if err != nil {
		h.errors.Respond(w, r, formError(err))
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		h.errors.Respond(w, r, &http.MaxBytesError{Limit: h.maxUpload})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	grid, err := ingest.ReadBytes(data, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	layout, err := ingest.ParseLayout(r.FormValue("layout"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	result := ingest.Options{
		Layout:      layout,
		Policy:      ingest.StrictPolicy,
		ServiceType: r.FormValue("serviceType"),
	}.Apply(grid)
	h.metrics.RecordImport(uploadSource, len(result.Records), result.Skipped)
	if err := result.Err(); err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	isDefault, err := formBool(r, "isDefault")
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	sheet, err := h.service.CreateFromRecords(r.Context(), pricesheet.ImportRequest{
		SheetName:       r.FormValue("sheetName"),
		Description:     r.FormValue("description"),
		FileName:        header.Filename,
		UploadedBy:      r.FormValue("uploadedBy"),
		AssignedVendors: formList(r.MultipartForm, "assignedVendors"),
		IsDefault:       isDefault,
		Records:         result.Records,
	})
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	h.logger.Info("price sheet uploaded",
		slog.String("sheet_id", sheet.ID.String()),
		slog.String("file", header.Filename),
		slog.Int("items", len(sheet.Items)),
		slog.Int("skipped", result.Skipped))

	httpx.JSON(w, http.StatusCreated, uploadResponse{
		Message:     "Price sheet uploaded successfully",
		PriceSheet:  sheet,
		SkippedRows: result.Skipped,
	})
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return err
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return shared.Validation("Excel file is required")
	default:
		return shared.Validation("Invalid upload: %v", err)
	}
}

func formBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, shared.Validation("%s must be true or false", key)
	}
	return v, nil
}

// formList accepts repeated fields and comma separated values alike.
func formList(form *multipart.Form, key string) []string {
	if form == nil {
		return nil
	}
	values, ok := form.Value[key]
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
