package pricesheet

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency applies to rate items imported or created without a currency.
const DefaultCurrency = "INR"

// UserRef is a weak reference to an account owned by the user service.
// Only display fields are ever populated.
type UserRef struct {
	ID         string `json:"id"`
	Username   string `json:"username,omitempty"`
	VendorName string `json:"vendorName,omitempty"`
}

// RateItem is one priced row of a sheet. It has no lifecycle outside its sheet.
type RateItem struct {
	ID             uuid.UUID      `json:"id"`
	ItemName       string         `json:"itemName"`
	HSNCode        string         `json:"hsnCode"`
	Weight         string         `json:"weight"`
	Rate           float64        `json:"rate"`
	Currency       string         `json:"currency"`
	Destination    string         `json:"destination"`
	Country        string         `json:"country"`
	CountryCode    string         `json:"countryCode"`
	ServiceType    string         `json:"serviceType"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

// PriceSheet is a named collection of rate items.
type PriceSheet struct {
	ID               uuid.UUID  `json:"id"`
	SheetName        string     `json:"sheetName"`
	Description      string     `json:"description"`
	Items            []RateItem `json:"items"`
	OriginalFileName string     `json:"originalFileName,omitempty"`
	UploadedBy       *UserRef   `json:"uploadedBy,omitempty"`
	// AssignedVendors is nil for legacy sheets created before assignment
	// existed; both nil and empty mean visible to every vendor.
	AssignedVendors []UserRef `json:"assignedVendors"`
	IsActive        bool      `json:"isActive"`
	IsDefault       bool      `json:"isDefault"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Item returns the item with the given id.
func (s PriceSheet) Item(id uuid.UUID) (RateItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return RateItem{}, false
}

// ListFilter narrows sheet listings. Nil pointers mean "any".
type ListFilter struct {
	VendorID  string
	IsActive  *bool
	IsDefault *bool
	Limit     int
	Offset    int
}

// SheetPatch carries sheet-level field changes. Nil fields are left untouched.
type SheetPatch struct {
	SheetName   *string
	Description *string
	IsActive    *bool
	// AssignedVendors replaces the assignment when non-nil; an empty slice
	// clears it to "visible to all".
	AssignedVendors *[]string
}

// BulkResult reports a partially applied batch.
type BulkResult struct {
	AddedCount int        `json:"addedCount"`
	Errors     []string   `json:"errors,omitempty"`
	Items      []RateItem `json:"-"`
}

func vendorRefs(ids []string) []UserRef {
	if ids == nil {
		return nil
	}
	refs := make([]UserRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, UserRef{ID: id})
	}
	return refs
}

func refIDs(refs []UserRef) []string {
	if refs == nil {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}
