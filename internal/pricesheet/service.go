package pricesheet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Service implements price sheet use cases.
type Service struct {
	repo     Repository
	cache    *Cache
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCurrency sets the currency applied to items submitted without one.
func WithCurrency(code string) Option {
	return func(s *Service) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			s.currency = code
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		cache:    cache,
		logger:   logger,
		currency: DefaultCurrency,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new sheet built from JSON input.
func (s *Service) Create(ctx context.Context, req CreateSheetRequest) (PriceSheet, error) {
	if err := validateStruct(req); err != nil {
		return PriceSheet{}, err
	}
	name, err := sheetName(req.SheetName)
	if err != nil {
		return PriceSheet{}, err
	}
	items, err := newItems(req.Items, s.currency)
	if err != nil {
		return PriceSheet{}, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	sheet := s.newSheet(name, req.Description, req.UploadedBy, req.AssignedVendors)
	sheet.OriginalFileName = strings.TrimSpace(req.OriginalFileName)
	sheet.IsActive = active
	sheet.Items = items
	return s.insert(ctx, sheet, req.IsDefault)
}

// CreateFromRecords stores a sheet parsed from an uploaded spreadsheet. An
// empty record list fails with ErrNoValidItems and stores nothing.
func (s *Service) CreateFromRecords(ctx context.Context, req ImportRequest) (PriceSheet, error) {
	if len(req.Records) == 0 {
		return PriceSheet{}, shared.NoValidItems("No valid items found in the Excel file", nil)
	}
	name := strings.TrimSpace(req.SheetName)
	if name == "" {
		name = "Price Sheet " + s.now().Format("2006-01-02")
	}
	sheet := s.newSheet(name, req.Description, req.UploadedBy, req.AssignedVendors)
	sheet.OriginalFileName = req.FileName
	sheet.Items = itemsFromRecords(req.Records, s.currency)
	return s.insert(ctx, sheet, req.IsDefault)
}

// Import replaces the items of the sheet named req.SheetName, creating the
// sheet when none exists. Used by the offline importer and the worker.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	name, err := sheetName(req.SheetName)
	if err != nil {
		return ImportResult{}, err
	}
	if len(req.Records) == 0 {
		return ImportResult{}, shared.NoValidItems("No valid items found in the Excel file", nil)
	}
	items := itemsFromRecords(req.Records, s.currency)
	result := ImportResult{Countries: countDistinct(items, func(i RateItem) string { return i.Country }),
		Services: countDistinct(items, func(i RateItem) string { return i.ServiceType })}

	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case err == nil:
		at := s.now()
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.ReplaceItems(ctx, existing.ID, items, at); err != nil {
				return err
			}
			if desc := strings.TrimSpace(req.Description); desc != "" {
				if err := tx.UpdateSheet(ctx, existing.ID, SheetPatch{Description: &desc}, at); err != nil {
					return err
				}
			}
			if req.IsDefault {
				if err := applyDefault(ctx, tx, existing.ID, at); err != nil {
					return err
				}
			}
			reloaded, err := tx.Lock(ctx, existing.ID)
			existing = reloaded
			return err
		})
		if err != nil {
			return ImportResult{}, err
		}
		s.invalidate(ctx)
		result.Sheet = existing
	case shared.IsNotFound(err):
		sheet := s.newSheet(name, req.Description, req.UploadedBy, req.AssignedVendors)
		sheet.OriginalFileName = req.FileName
		sheet.Items = items
		created, err := s.insert(ctx, sheet, req.IsDefault)
		if err != nil {
			return ImportResult{}, err
		}
		result.Sheet, result.Created = created, true
	default:
		return ImportResult{}, err
	}

	s.logger.Info("price sheet imported",
		slog.String("sheet_id", result.Sheet.ID.String()),
		slog.String("sheet_name", name),
		slog.Bool("created", result.Created),
		slog.Int("items", len(items)))
	return result, nil
}

// Get returns a sheet by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (PriceSheet, error) {
	return s.repo.Get(ctx, id)
}

// ListForVendor returns one page of sheets visible to filter.VendorID and
// the total match count.
func (s *Service) ListForVendor(ctx context.Context, filter ListFilter) ([]PriceSheet, int, error) {
	filter.VendorID = strings.TrimSpace(filter.VendorID)
	return s.repo.List(ctx, filter)
}

// GetActiveForVendor returns the default sheet among the active sheets the
// vendor may see, else the newest of them.
func (s *Service) GetActiveForVendor(ctx context.Context, vendorID string) (PriceSheet, error) {
	vendorID = strings.TrimSpace(vendorID)
	return s.cache.Active(ctx, vendorID, func(ctx context.Context) (PriceSheet, error) {
		candidates, err := s.repo.ActiveCandidates(ctx, vendorID)
		if err != nil {
			return PriceSheet{}, err
		}
		picked, ok := PickActive(candidates)
		if !ok {
			return PriceSheet{}, shared.NotFound("No active price sheet found")
		}
		return s.repo.Get(ctx, picked.ID)
	})
}

// Update applies sheet-level changes. Items, when present, replace the
// whole item list.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateSheetRequest) (PriceSheet, error) {
	if err := validateStruct(req); err != nil {
		return PriceSheet{}, err
	}
	patch := SheetPatch{IsActive: req.IsActive}
	if req.SheetName != nil {
		name, err := sheetName(*req.SheetName)
		if err != nil {
			return PriceSheet{}, err
		}
		patch.SheetName = &name
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		patch.Description = &desc
	}
	if req.AssignedVendors != nil {
		ids := vendorIDs(*req.AssignedVendors)
		if ids == nil {
			ids = []string{}
		}
		patch.AssignedVendors = &ids
	}
	var items []RateItem
	if req.Items != nil {
		var err error
		if items, err = newItems(*req.Items, s.currency); err != nil {
			return PriceSheet{}, err
		}
	}

	return s.mutate(ctx, id, func(ctx context.Context, tx TxRepository, _ PriceSheet, at time.Time) error {
		if err := tx.UpdateSheet(ctx, id, patch, at); err != nil {
			return err
		}
		if req.Items != nil {
			if err := tx.ReplaceItems(ctx, id, items, at); err != nil {
				return err
			}
		}
		if req.IsDefault != nil {
			if *req.IsDefault {
				return applyDefault(ctx, tx, id, at)
			}
			return tx.MarkDefault(ctx, id, false, at)
		}
		return nil
	})
}

// Delete removes a sheet and its items permanently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SetDefault makes id the only default sheet.
func (s *Service) SetDefault(ctx context.Context, id uuid.UUID) (PriceSheet, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx TxRepository, _ PriceSheet, at time.Time) error {
		return applyDefault(ctx, tx, id, at)
	})
}

// AddItem appends one validated item.
func (s *Service) AddItem(ctx context.Context, sheetID uuid.UUID, in ItemInput) (PriceSheet, error) {
	return s.mutate(ctx, sheetID, func(ctx context.Context, tx TxRepository, _ PriceSheet, at time.Time) error {
		item, err := newItem(in, s.currency)
		if err != nil {
			return err
		}
		return tx.AppendItems(ctx, sheetID, []RateItem{item}, at)
	})
}

// BulkAddItems validates each candidate independently and appends the valid
// ones. Invalid rows are reported as "Row N: reason". The batch fails with
// ErrNoValidItems only when no row is valid.
func (s *Service) BulkAddItems(ctx context.Context, sheetID uuid.UUID, inputs []ItemInput) (BulkResult, error) {
	if len(inputs) == 0 {
		return BulkResult{}, shared.Validation("Items array is required")
	}
	var result BulkResult
	_, err := s.mutate(ctx, sheetID, func(ctx context.Context, tx TxRepository, _ PriceSheet, at time.Time) error {
		result = BulkResult{}
		for i, in := range inputs {
			item, err := newItem(in, s.currency)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", i+1, shared.UserSafeMessage(err)))
				continue
			}
			result.Items = append(result.Items, item)
		}
		if len(result.Items) == 0 {
			return shared.NoValidItems("No valid items to add", result.Errors)
		}
		result.AddedCount = len(result.Items)
		return tx.AppendItems(ctx, sheetID, result.Items, at)
	})
	if err != nil {
		return BulkResult{}, err
	}
	return result, nil
}

// UpdateItem applies a partial update to one item.
func (s *Service) UpdateItem(ctx context.Context, sheetID, itemID uuid.UUID, patch ItemPatch) (PriceSheet, error) {
	return s.mutate(ctx, sheetID, func(ctx context.Context, tx TxRepository, sheet PriceSheet, at time.Time) error {
		item, ok := sheet.Item(itemID)
		if !ok {
			return shared.NotFound("Item not found")
		}
		updated, err := applyPatch(item, patch, s.currency)
		if err != nil {
			return err
		}
		return tx.UpdateItem(ctx, sheetID, updated, at)
	})
}

// DeleteItem removes one item.
func (s *Service) DeleteItem(ctx context.Context, sheetID, itemID uuid.UUID) (PriceSheet, error) {
	return s.mutate(ctx, sheetID, func(ctx context.Context, tx TxRepository, sheet PriceSheet, at time.Time) error {
		if _, ok := sheet.Item(itemID); !ok {
			return shared.NotFound("Item not found")
		}
		return tx.DeleteItem(ctx, sheetID, itemID, at)
	})
}

// VendorIDs lists vendors with an explicit assignment on an active sheet.
func (s *Service) VendorIDs(ctx context.Context) ([]string, error) {
	return s.repo.VendorIDs(ctx)
}

// mutate locks the sheet, runs fn and returns the sheet as committed.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(context.Context, TxRepository, PriceSheet, time.Time) error) (PriceSheet, error) {
	at := s.now()
	var out PriceSheet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, sheet, at); err != nil {
			return err
		}
		out, err = tx.Lock(ctx, id)
		return err
	})
	if err != nil {
		return PriceSheet{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *Service) insert(ctx context.Context, sheet PriceSheet, isDefault bool) (PriceSheet, error) {
	var out PriceSheet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, sheet); err != nil {
			return err
		}
		if isDefault {
			if err := applyDefault(ctx, tx, sheet.ID, sheet.CreatedAt); err != nil {
				return err
			}
		}
		var err error
		out, err = tx.Lock(ctx, sheet.ID)
		return err
	})
	if err != nil {
		return PriceSheet{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *Service) newSheet(name, description, uploadedBy string, vendors []string) PriceSheet {
	at := s.now()
	ids := vendorIDs(vendors)
	if ids == nil {
		ids = []string{}
	}
	sheet := PriceSheet{
		ID:              uuid.New(),
		SheetName:       name,
		Description:     strings.TrimSpace(description),
		Items:           []RateItem{},
		AssignedVendors: vendorRefs(ids),
		IsActive:        true,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if id := strings.TrimSpace(uploadedBy); id != "" {
		sheet.UploadedBy = &UserRef{ID: id}
	}
	return sheet
}

// applyDefault is the only path that sets is_default. It must run inside
// the transaction that owns id.
func applyDefault(ctx context.Context, tx TxRepository, id uuid.UUID, at time.Time) error {
	if err := tx.ClearDefaults(ctx, id, at); err != nil {
		return err
	}
	return tx.MarkDefault(ctx, id, true, at)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("price sheet cache invalidation failed", slog.Any("error", err))
	}
}

func countDistinct(items []RateItem, key func(RateItem) string) int {
	seen := make(map[string]struct{})
	for _, item := range items {
		if k := key(item); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}
