package pricesheet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
)

// Rate accepts either a JSON number or a string such as "₹1,500". Strings are
// cleaned with the same normalizer used for spreadsheet cells.
type Rate struct {
	Value float64
	// Set is false when the field was absent or null.
	Set bool
	// Valid is false when a string could not be read as a number.
	Valid bool
}

// NewRate wraps a parsed number.
func NewRate(v float64) Rate { return Rate{Value: v, Set: true, Valid: true} }

func (r *Rate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Rate{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := ingest.ParseRate(s)
		*r = Rate{Value: v, Set: true, Valid: ok}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rate must be a number or numeric string")
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("rate must be a number or numeric string")
	}
	*r = NewRate(f)
	return nil
}

func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Set {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// ItemInput is a rate item as submitted through the API.
type ItemInput struct {
	ItemName       string         `json:"itemName" validate:"max=300"`
	HSNCode        string         `json:"hsnCode" validate:"max=32"`
	Weight         string         `json:"weight" validate:"max=64"`
	Rate           Rate           `json:"rate"`
	Currency       string         `json:"currency" validate:"omitempty,len=3,alpha"`
	Destination    string         `json:"destination" validate:"max=200"`
	Country        string         `json:"country" validate:"max=200"`
	CountryCode    string         `json:"countryCode" validate:"max=8"`
	ServiceType    string         `json:"serviceType" validate:"max=100"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

// BulkItemsRequest is the body of a bulk add.
type BulkItemsRequest struct {
	Items []ItemInput `json:"items"`
}

// ItemPatch updates a rate item. A nil field is left untouched; a non-nil
// pointer to "" clears the field.
type ItemPatch struct {
	ItemName       *string        `json:"itemName,omitempty" validate:"omitempty,max=300"`
	HSNCode        *string        `json:"hsnCode,omitempty" validate:"omitempty,max=32"`
	Weight         *string        `json:"weight,omitempty" validate:"omitempty,max=64"`
	Rate           *Rate          `json:"rate,omitempty"`
	Currency       *string        `json:"currency,omitempty" validate:"omitempty,max=3"`
	Destination    *string        `json:"destination,omitempty" validate:"omitempty,max=200"`
	Country        *string        `json:"country,omitempty" validate:"omitempty,max=200"`
	CountryCode    *string        `json:"countryCode,omitempty" validate:"omitempty,max=8"`
	ServiceType    *string        `json:"serviceType,omitempty" validate:"omitempty,max=100"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

// CreateSheetRequest creates a sheet, optionally pre-populated.
type CreateSheetRequest struct {
	SheetName        string      `json:"sheetName" validate:"max=200"`
	Description      string      `json:"description" validate:"max=2000"`
	Items            []ItemInput `json:"items" validate:"dive"`
	OriginalFileName string      `json:"originalFileName,omitempty" validate:"max=255"`
	UploadedBy       string      `json:"uploadedBy,omitempty" validate:"max=64"`
	// AssignedVendors nil or empty makes the sheet visible to every vendor.
	AssignedVendors []string `json:"assignedVendors" validate:"dive,max=64"`
	IsDefault       bool     `json:"isDefault"`
	IsActive        *bool    `json:"isActive,omitempty"`
}

// UpdateSheetRequest changes sheet-level fields. Absent fields are untouched.
type UpdateSheetRequest struct {
	SheetName       *string      `json:"sheetName,omitempty" validate:"omitempty,max=200"`
	Description     *string      `json:"description,omitempty" validate:"omitempty,max=2000"`
	IsActive        *bool        `json:"isActive,omitempty"`
	IsDefault       *bool        `json:"isDefault,omitempty"`
	AssignedVendors *[]string    `json:"assignedVendors,omitempty" validate:"omitempty,dive,max=64"`
	Items           *[]ItemInput `json:"items,omitempty" validate:"omitempty,dive"`
}

// ImportRequest describes a spreadsheet import run from disk or a worker.
type ImportRequest struct {
	SheetName       string
	Description     string
	FileName        string
	UploadedBy      string
	AssignedVendors []string
	IsDefault       bool
	Records         []ingest.Record
}

// ImportResult summarises an import.
type ImportResult struct {
	Sheet     PriceSheet
	Created   bool
	Countries int
	Services  int
}
