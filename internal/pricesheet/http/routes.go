package pricesheethttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vzcourier/vzcourier-backend/internal/platform/httpx"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// MountRoutes registers the price sheet endpoints onto r, which is expected
// to be mounted at /api/price-sheets.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}

	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/active", h.handleActive)
	r.Get("/template", h.handleTemplate)
	r.Group(func(gr chi.Router) {
		if h.uploads > 0 {
			gr.Use(httprate.Limit(h.uploads, time.Minute,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Message(w, http.StatusTooManyRequests, "Too many uploads, try again later")
				}),
			))
		}
		gr.Post("/upload", h.handleUpload)
	})

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/default", h.handleSetDefault)
		r.Post("/items", h.handleAddItem)
		r.Post("/items/bulk", h.handleBulkAdd)
		r.Put("/items/{itemId}", h.handleUpdateItem)
		r.Delete("/items/{itemId}", h.handleDeleteItem)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if vendor := strings.TrimSpace(shared.VendorFromContext(r.Context())); vendor != "" {
		return "vendor:" + vendor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
