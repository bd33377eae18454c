// Package pricesheettest provides an in-memory price sheet repository for tests.
package pricesheettest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Repository is a pricesheet.Repository kept in memory. Transactions work
// on a copy that replaces the live state only on success, and the
// single-default rule is checked at commit like the partial unique index.
type Repository struct {
	mu     sync.Mutex
	sheets map[uuid.UUID]pricesheet.PriceSheet
	users  map[string]pricesheet.UserRef

	// Counters for cache assertions.
	GetCalls    int
	ActiveCalls int
	TxCalls     int
}

var _ pricesheet.Repository = (*Repository)(nil)

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		sheets: make(map[uuid.UUID]pricesheet.PriceSheet),
		users:  make(map[string]pricesheet.UserRef),
	}
}

// AddUser registers display data for a user id.
func (r *Repository) AddUser(u pricesheet.UserRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Seed stores sheets as-is, bypassing the default-flag rule.
func (r *Repository) Seed(sheets ...pricesheet.PriceSheet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sheets {
		r.sheets[s.ID] = clone(s)
	}
}

// Defaults returns the ids of every sheet flagged default.
func (r *Repository) Defaults() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range r.sheets {
		if s.IsDefault {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pricesheet.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TxCalls++

	work := make(map[uuid.UUID]pricesheet.PriceSheet, len(r.sheets))
	for id, s := range r.sheets {
		work[id] = clone(s)
	}
	tx := &txRepo{sheets: work, users: r.users}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	defaults := 0
	for _, s := range work {
		if s.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return shared.Duplicate("A default price sheet already exists")
	}
	r.sheets = work
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (pricesheet.PriceSheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GetCalls++
	s, ok := r.sheets[id]
	if !ok {
		return pricesheet.PriceSheet{}, shared.NotFound("Price sheet not found")
	}
	return populate(s, r.users), nil
}

func (r *Repository) FindByName(ctx context.Context, name string) (pricesheet.PriceSheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found pricesheet.PriceSheet
		ok    bool
	)
	for _, s := range r.sheets {
		if s.SheetName == name && (!ok || s.CreatedAt.After(found.CreatedAt)) {
			found, ok = s, true
		}
	}
	if !ok {
		return pricesheet.PriceSheet{}, shared.NotFound("Price sheet %q not found", name)
	}
	return populate(found, r.users), nil
}

func (r *Repository) List(ctx context.Context, filter pricesheet.ListFilter) ([]pricesheet.PriceSheet, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pricesheet.PriceSheet
	for _, s := range r.sheets {
		if filter.Matches(s) {
			out = append(out, populate(s, r.users))
		}
	}
	sortNewest(out)
	total := len(out)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		out = out[start:end]
	}
	return out, total, nil
}

func (r *Repository) ActiveCandidates(ctx context.Context, vendorID string) ([]pricesheet.PriceSheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ActiveCalls++
	active := true
	filter := pricesheet.ListFilter{VendorID: vendorID, IsActive: &active}
	var out []pricesheet.PriceSheet
	for _, s := range r.sheets {
		if filter.Matches(s) {
			s.Items = nil
			out = append(out, s)
		}
	}
	sortNewest(out)
	return out, nil
}

func (r *Repository) VendorIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range r.sheets {
		if !s.IsActive {
			continue
		}
		for _, ref := range s.AssignedVendors {
			if _, ok := seen[ref.ID]; !ok {
				seen[ref.ID] = struct{}{}
				ids = append(ids, ref.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type txRepo struct {
	sheets map[uuid.UUID]pricesheet.PriceSheet
	users  map[string]pricesheet.UserRef
}

func (t *txRepo) sheet(id uuid.UUID) (pricesheet.PriceSheet, error) {
	s, ok := t.sheets[id]
	if !ok {
		return pricesheet.PriceSheet{}, shared.NotFound("Price sheet not found")
	}
	return s, nil
}

func (t *txRepo) Lock(ctx context.Context, id uuid.UUID) (pricesheet.PriceSheet, error) {
	s, err := t.sheet(id)
	if err != nil {
		return pricesheet.PriceSheet{}, err
	}
	return populate(clone(s), t.users), nil
}

func (t *txRepo) Insert(ctx context.Context, sheet pricesheet.PriceSheet) error {
	if _, exists := t.sheets[sheet.ID]; exists {
		return shared.Duplicate("Price sheet already exists")
	}
	sheet = clone(sheet)
	sheet.IsDefault = false
	sheet.UpdatedAt = sheet.CreatedAt
	if sheet.Items == nil {
		sheet.Items = []pricesheet.RateItem{}
	}
	t.sheets[sheet.ID] = sheet
	return nil
}

func (t *txRepo) UpdateSheet(ctx context.Context, id uuid.UUID, patch pricesheet.SheetPatch, at time.Time) error {
	s, err := t.sheet(id)
	if err != nil {
		return err
	}
	if patch.SheetName != nil {
		s.SheetName = *patch.SheetName
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.IsActive != nil {
		s.IsActive = *patch.IsActive
	}
	if patch.AssignedVendors != nil {
		refs := make([]pricesheet.UserRef, 0, len(*patch.AssignedVendors))
		for _, id := range *patch.AssignedVendors {
			refs = append(refs, pricesheet.UserRef{ID: id})
		}
		s.AssignedVendors = refs
	}
	s.UpdatedAt = at
	t.sheets[id] = s
	return nil
}

func (t *txRepo) ClearDefaults(ctx context.Context, except uuid.UUID, at time.Time) error {
	for id, s := range t.sheets {
		if s.IsDefault && id != except {
			s.IsDefault = false
			s.UpdatedAt = at
			t.sheets[id] = s
		}
	}
	return nil
}

func (t *txRepo) MarkDefault(ctx context.Context, id uuid.UUID, isDefault bool, at time.Time) error {
	s, err := t.sheet(id)
	if err != nil {
		return err
	}
	s.IsDefault = isDefault
	s.UpdatedAt = at
	t.sheets[id] = s
	return nil
}

func (t *txRepo) ReplaceItems(ctx context.Context, id uuid.UUID, items []pricesheet.RateItem, at time.Time) error {
	s, err := t.sheet(id)
	if err != nil {
		return err
	}
	s.Items = append([]pricesheet.RateItem{}, items...)
	s.UpdatedAt = at
	t.sheets[id] = s
	return nil
}

func (t *txRepo) AppendItems(ctx context.Context, id uuid.UUID, items []pricesheet.RateItem, at time.Time) error {
	s, err := t.sheet(id)
	if err != nil {
		return err
	}
	s.Items = append(s.Items, items...)
	s.UpdatedAt = at
	t.sheets[id] = s
	return nil
}

func (t *txRepo) UpdateItem(ctx context.Context, sheetID uuid.UUID, item pricesheet.RateItem, at time.Time) error {
	s, err := t.sheet(sheetID)
	if err != nil {
		return err
	}
	for i := range s.Items {
		if s.Items[i].ID == item.ID {
			s.Items[i] = item
			s.UpdatedAt = at
			t.sheets[sheetID] = s
			return nil
		}
	}
	return shared.NotFound("Item not found")
}

func (t *txRepo) DeleteItem(ctx context.Context, sheetID, itemID uuid.UUID, at time.Time) error {
	s, err := t.sheet(sheetID)
	if err != nil {
		return err
	}
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			s.UpdatedAt = at
			t.sheets[sheetID] = s
			return nil
		}
	}
	return shared.NotFound("Item not found")
}

func (t *txRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := t.sheet(id); err != nil {
		return err
	}
	delete(t.sheets, id)
	return nil
}

func clone(s pricesheet.PriceSheet) pricesheet.PriceSheet {
	if s.Items != nil {
		s.Items = append([]pricesheet.RateItem{}, s.Items...)
	}
	if s.AssignedVendors != nil {
		s.AssignedVendors = append([]pricesheet.UserRef{}, s.AssignedVendors...)
	}
	if s.UploadedBy != nil {
		ref := *s.UploadedBy
		s.UploadedBy = &ref
	}
	return s
}

func populate(s pricesheet.PriceSheet, users map[string]pricesheet.UserRef) pricesheet.PriceSheet {
	s = clone(s)
	if s.UploadedBy != nil {
		if u, ok := users[s.UploadedBy.ID]; ok {
			s.UploadedBy = &u
		}
	}
	for i, ref := range s.AssignedVendors {
		if u, ok := users[ref.ID]; ok {
			s.AssignedVendors[i] = u
		}
	}
	return s
}

func sortNewest(sheets []pricesheet.PriceSheet) {
	sort.SliceStable(sheets, func(i, j int) bool {
		return sheets[i].CreatedAt.After(sheets[j].CreatedAt)
	})
}
