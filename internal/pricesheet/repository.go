package pricesheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vzcourier/vzcourier-backend/internal/platform/db"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Repository is the read side of sheet storage plus a transactional entry
// point for mutations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (PriceSheet, error)
	FindByName(ctx context.Context, name string) (PriceSheet, error)
	// List returns one page of matching sheets, newest first, and the total
	// number of matches.
	List(ctx context.Context, filter ListFilter) ([]PriceSheet, int, error)
	// ActiveCandidates returns active sheets visible to vendorID without items.
	ActiveCandidates(ctx context.Context, vendorID string) ([]PriceSheet, error)
	// VendorIDs lists every vendor named in an active sheet's assignment.
	VendorIDs(ctx context.Context) ([]string, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// Lock loads a sheet with its items and holds a row lock until commit.
	Lock(ctx context.Context, id uuid.UUID) (PriceSheet, error)
	// Insert stores a new sheet with is_default false.
	Insert(ctx context.Context, sheet PriceSheet) error
	UpdateSheet(ctx context.Context, id uuid.UUID, patch SheetPatch, at time.Time) error
	ClearDefaults(ctx context.Context, except uuid.UUID, at time.Time) error
	MarkDefault(ctx context.Context, id uuid.UUID, isDefault bool, at time.Time) error
	ReplaceItems(ctx context.Context, id uuid.UUID, items []RateItem, at time.Time) error
	AppendItems(ctx context.Context, id uuid.UUID, items []RateItem, at time.Time) error
	UpdateItem(ctx context.Context, sheetID uuid.UUID, item RateItem, at time.Time) error
	DeleteItem(ctx context.Context, sheetID, itemID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const txAttempts = 3

// PGRepository stores sheets in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a serializable transaction, retrying serialization
// conflicts. Default-flag changes depend on this isolation level.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(ctx, &txRepo{tx: tx})
		})
		if !db.IsSerializationFailure(err) {
			break
		}
	}
	return mapError(err)
}

const sheetColumns = `
	s.id, s.sheet_name, s.description, s.original_file_name,
	s.uploaded_by, ub.username, ub.vendor_name,
	s.assigned_vendors, s.is_active, s.is_default, s.created_at, s.updated_at`

const sheetFrom = `
	FROM price_sheets s
	LEFT JOIN users ub ON ub.id = s.uploaded_by`

// visibleTo matches legacy (NULL), unassigned and assigned-to-vendor sheets.
// The vendor id is compared as text, so malformed ids simply match nothing.
const visibleTo = `(s.assigned_vendors IS NULL OR cardinality(s.assigned_vendors) = 0 OR %s = ANY(s.assigned_vendors))`

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (PriceSheet, error) {
	return getSheet(ctx, r.pool, id, false)
}

func (r *PGRepository) FindByName(ctx context.Context, name string) (PriceSheet, error) {
	row := r.pool.QueryRow(ctx, `SELECT s.id`+sheetFrom+` WHERE s.sheet_name = $1 ORDER BY s.created_at DESC LIMIT 1`, name)
	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PriceSheet{}, shared.NotFound("Price sheet %q not found", name)
		}
		return PriceSheet{}, fmt.Errorf("pricesheet: find by name: %w", err)
	}
	return getSheet(ctx, r.pool, id, false)
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]PriceSheet, int, error) {
	where, args := listConditions(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM price_sheets s`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pricesheet: count sheets: %w", err)
	}

	query := `SELECT ` + sheetColumns + sheetFrom + where + ` ORDER BY s.created_at DESC, s.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	sheets, err := querySheets(ctx, r.pool, query, args...)
	if err != nil {
		return nil, 0, err
	}
	if err := loadItems(ctx, r.pool, sheets); err != nil {
		return nil, 0, err
	}
	if err := populateVendors(ctx, r.pool, sheets); err != nil {
		return nil, 0, err
	}
	return sheets, total, nil
}

func listConditions(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("s.is_active = $%d", len(args)))
	}
	if filter.IsDefault != nil {
		args = append(args, *filter.IsDefault)
		conds = append(conds, fmt.Sprintf("s.is_default = $%d", len(args)))
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		conds = append(conds, fmt.Sprintf(visibleTo, fmt.Sprintf("$%d::text", len(args))))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PGRepository) ActiveCandidates(ctx context.Context, vendorID string) ([]PriceSheet, error) {
	query := `SELECT ` + sheetColumns + sheetFrom + ` WHERE s.is_active`
	var args []any
	if vendorID != "" {
		args = append(args, vendorID)
		query += ` AND ` + fmt.Sprintf(visibleTo, "$1::text")
	}
	query += ` ORDER BY s.is_default DESC, s.created_at DESC`
	return querySheets(ctx, r.pool, query, args...)
}

func (r *PGRepository) VendorIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT v
		FROM price_sheets, unnest(assigned_vendors) AS v
		WHERE is_active
		ORDER BY v`)
	if err != nil {
		return nil, fmt.Errorf("pricesheet: vendor ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pricesheet: vendor ids: %w", err)
	}
	return ids, nil
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) Lock(ctx context.Context, id uuid.UUID) (PriceSheet, error) {
	return getSheet(ctx, t.tx, id, true)
}

func (t *txRepo) Insert(ctx context.Context, sheet PriceSheet) error {
	var uploadedBy *string
	if sheet.UploadedBy != nil && sheet.UploadedBy.ID != "" {
		uploadedBy = &sheet.UploadedBy.ID
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO price_sheets (id, sheet_name, description, original_file_name, uploaded_by,
		                          assigned_vendors, is_active, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)`,
		sheet.ID, sheet.SheetName, sheet.Description, sheet.OriginalFileName, uploadedBy,
		refIDs(sheet.AssignedVendors), sheet.IsActive, sheet.CreatedAt)
	if err != nil {
		return fmt.Errorf("pricesheet: insert sheet: %w", err)
	}
	return insertItems(ctx, t.tx, sheet.ID, 0, sheet.Items)
}

func (t *txRepo) UpdateSheet(ctx context.Context, id uuid.UUID, patch SheetPatch, at time.Time) error {
	sets := []string{"updated_at = $2"}
	args := []any{id, at}
	if patch.SheetName != nil {
		args = append(args, *patch.SheetName)
		sets = append(sets, fmt.Sprintf("sheet_name = $%d", len(args)))
	}
	if patch.Description != nil {
		args = append(args, *patch.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if patch.IsActive != nil {
		args = append(args, *patch.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if patch.AssignedVendors != nil {
		ids := *patch.AssignedVendors
		if ids == nil {
			ids = []string{}
		}
		args = append(args, ids)
		sets = append(sets, fmt.Sprintf("assigned_vendors = $%d", len(args)))
	}
	return t.execOne(ctx, `UPDATE price_sheets SET `+strings.Join(sets, ", ")+` WHERE id = $1`, id, args...)
}

func (t *txRepo) ClearDefaults(ctx context.Context, except uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE price_sheets SET is_default = FALSE, updated_at = $2
		WHERE is_default AND id <> $1`, except, at)
	if err != nil {
		return fmt.Errorf("pricesheet: clear defaults: %w", err)
	}
	return nil
}

func (t *txRepo) MarkDefault(ctx context.Context, id uuid.UUID, isDefault bool, at time.Time) error {
	return t.execOne(ctx, `UPDATE price_sheets SET is_default = $2, updated_at = $3 WHERE id = $1`, id, id, isDefault, at)
}

func (t *txRepo) ReplaceItems(ctx context.Context, id uuid.UUID, items []RateItem, at time.Time) error {
	if err := t.touch(ctx, id, at); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM price_sheet_items WHERE sheet_id = $1`, id); err != nil {
		return fmt.Errorf("pricesheet: clear items: %w", err)
	}
	return insertItems(ctx, t.tx, id, 0, items)
}

func (t *txRepo) AppendItems(ctx context.Context, id uuid.UUID, items []RateItem, at time.Time) error {
	if err := t.touch(ctx, id, at); err != nil {
		return err
	}
	var next int
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM price_sheet_items WHERE sheet_id = $1`, id).Scan(&next); err != nil {
		return fmt.Errorf("pricesheet: next item position: %w", err)
	}
	return insertItems(ctx, t.tx, id, next, items)
}

func (t *txRepo) UpdateItem(ctx context.Context, sheetID uuid.UUID, item RateItem, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE price_sheet_items
		SET item_name = $3, hsn_code = $4, weight = $5, rate = $6, currency = $7,
		    destination = $8, country = $9, country_code = $10, service_type = $11,
		    additional_info = $12
		WHERE sheet_id = $1 AND id = $2`,
		sheetID, item.ID, item.ItemName, item.HSNCode, item.Weight, item.Rate, item.Currency,
		item.Destination, item.Country, item.CountryCode, item.ServiceType, item.AdditionalInfo)
	if err != nil {
		return fmt.Errorf("pricesheet: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Item not found")
	}
	return t.touch(ctx, sheetID, at)
}

func (t *txRepo) DeleteItem(ctx context.Context, sheetID, itemID uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM price_sheet_items WHERE sheet_id = $1 AND id = $2`, sheetID, itemID)
	if err != nil {
		return fmt.Errorf("pricesheet: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Item not found")
	}
	return t.touch(ctx, sheetID, at)
}

func (t *txRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return t.execOne(ctx, `DELETE FROM price_sheets WHERE id = $1`, id)
}

func (t *txRepo) touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.execOne(ctx, `UPDATE price_sheets SET updated_at = $2 WHERE id = $1`, id, id, at)
}

// execOne runs a statement that must affect the sheet row identified by id.
func (t *txRepo) execOne(ctx context.Context, sql string, id uuid.UUID, args ...any) error {
	if len(args) == 0 {
		args = []any{id}
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("pricesheet: update sheet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Price sheet not found")
	}
	return nil
}

// ============================================================================
// SHARED QUERIES
// ============================================================================

func getSheet(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (PriceSheet, error) {
	query := `SELECT ` + sheetColumns + sheetFrom + ` WHERE s.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF s`
	}
	sheets, err := querySheets(ctx, q, query, id)
	if err != nil {
		return PriceSheet{}, err
	}
	if len(sheets) == 0 {
		return PriceSheet{}, shared.NotFound("Price sheet not found")
	}
	if err := loadItems(ctx, q, sheets); err != nil {
		return PriceSheet{}, err
	}
	if err := populateVendors(ctx, q, sheets); err != nil {
		return PriceSheet{}, err
	}
	return sheets[0], nil
}

func querySheets(ctx context.Context, q querier, query string, args ...any) ([]PriceSheet, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pricesheet: query sheets: %w", err)
	}
	defer rows.Close()

	var sheets []PriceSheet
	for rows.Next() {
		var (
			s                    PriceSheet
			uploadedBy           *string
			username, vendorName *string
			assigned             []string
		)
		if err := rows.Scan(&s.ID, &s.SheetName, &s.Description, &s.OriginalFileName,
			&uploadedBy, &username, &vendorName,
			&assigned, &s.IsActive, &s.IsDefault, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pricesheet: scan sheet: %w", err)
		}
		if uploadedBy != nil {
			s.UploadedBy = &UserRef{ID: *uploadedBy, Username: deref(username), VendorName: deref(vendorName)}
		}
		s.AssignedVendors = vendorRefs(assigned)
		s.Items = []RateItem{}
		sheets = append(sheets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricesheet: iterate sheets: %w", err)
	}
	return sheets, nil
}

func loadItems(ctx context.Context, q querier, sheets []PriceSheet) error {
	if len(sheets) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(sheets))
	ids := make([]uuid.UUID, 0, len(sheets))
	for i, s := range sheets {
		index[s.ID] = i
		ids = append(ids, s.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT sheet_id, id, item_name, hsn_code, weight, rate::float8, currency,
		       destination, country, country_code, service_type, additional_info
		FROM price_sheet_items
		WHERE sheet_id = ANY($1)
		ORDER BY sheet_id, position, id`, ids)
	if err != nil {
		return fmt.Errorf("pricesheet: query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sheetID uuid.UUID
			item    RateItem
		)
		if err := rows.Scan(&sheetID, &item.ID, &item.ItemName, &item.HSNCode, &item.Weight, &item.Rate,
			&item.Currency, &item.Destination, &item.Country, &item.CountryCode, &item.ServiceType,
			&item.AdditionalInfo); err != nil {
			return fmt.Errorf("pricesheet: scan item: %w", err)
		}
		i := index[sheetID]
		sheets[i].Items = append(sheets[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pricesheet: iterate items: %w", err)
	}
	return nil
}

// populateVendors fills display fields of assigned vendor references.
// Unknown ids keep only their id.
func populateVendors(ctx context.Context, q querier, sheets []PriceSheet) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range sheets {
		for _, ref := range s.AssignedVendors {
			if _, ok := seen[ref.ID]; !ok {
				seen[ref.ID] = struct{}{}
				ids = append(ids, ref.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := q.Query(ctx, `SELECT id, username, vendor_name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("pricesheet: query vendors: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserRef, error) {
		var u UserRef
		err := row.Scan(&u.ID, &u.Username, &u.VendorName)
		return u, err
	})
	if err != nil {
		return fmt.Errorf("pricesheet: scan vendors: %w", err)
	}
	byID := make(map[string]UserRef, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range sheets {
		for j, ref := range sheets[i].AssignedVendors {
			if u, ok := byID[ref.ID]; ok {
				sheets[i].AssignedVendors[j] = u
			}
		}
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, sheetID uuid.UUID, start int, items []RateItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(items))
	for i, item := range items {
		rows = append(rows, []any{
			item.ID, sheetID, start + i, item.ItemName, item.HSNCode, item.Weight, item.Rate,
			item.Currency, item.Destination, item.Country, item.CountryCode, item.ServiceType,
			item.AdditionalInfo,
		})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"price_sheet_items"},
		[]string{"id", "sheet_id", "position", "item_name", "hsn_code", "weight", "rate",
			"currency", "destination", "country", "country_code", "service_type", "additional_info"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("pricesheet: insert items: %w", err)
	}
	return nil
}

// mapError converts store constraint failures into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		if db.ConstraintName(err) == "price_sheets_single_default_idx" {
			return shared.Duplicate("A default price sheet already exists")
		}
		return shared.Duplicate("Price sheet already exists")
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
