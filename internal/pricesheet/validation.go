package pricesheet

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and folds field errors into a single
// ErrValidation carrying one detail per field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.Validation("invalid input: %v", err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fieldMessage(fe))
	}
	return &shared.Error{Kind: shared.ErrValidation, Message: details[0], Details: details}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain letters only", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

var (
	errItemRequired = shared.Validation("Item name and rate are required")
	errInvalidRate  = shared.Validation("Invalid rate value")
)

// newItem validates a candidate item and builds the stored form. Rates must
// be strictly positive.
func newItem(in ItemInput, currency string) (RateItem, error) {
	name := strings.TrimSpace(in.ItemName)
	if name == "" || !in.Rate.Set {
		return RateItem{}, errItemRequired
	}
	if !in.Rate.Valid || in.Rate.Value <= 0 {
		return RateItem{}, errInvalidRate
	}
	if err := validateStruct(in); err != nil {
		return RateItem{}, err
	}
	return RateItem{
		ID:             uuid.New(),
		ItemName:       name,
		HSNCode:        strings.TrimSpace(in.HSNCode),
		Weight:         strings.TrimSpace(in.Weight),
		Rate:           ingest.Round(in.Rate.Value),
		Currency:       currencyOr(in.Currency, currency),
		Destination:    strings.TrimSpace(in.Destination),
		Country:        strings.TrimSpace(in.Country),
		CountryCode:    strings.TrimSpace(in.CountryCode),
		ServiceType:    strings.TrimSpace(in.ServiceType),
		AdditionalInfo: in.AdditionalInfo,
	}, nil
}

// newItems validates a whole list, failing on the first bad entry.
func newItems(inputs []ItemInput, currency string) ([]RateItem, error) {
	items := make([]RateItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := newItem(in, currency)
		if err != nil {
			return nil, shared.Validation("Item %d: %s", i+1, shared.UserSafeMessage(err))
		}
		items = append(items, item)
	}
	return items, nil
}

// itemsFromRecords converts parsed spreadsheet rows. Rates are not
// re-validated: the ingest policy already decided what to keep.
func itemsFromRecords(records []ingest.Record, currency string) []RateItem {
	items := make([]RateItem, 0, len(records))
	for _, rec := range records {
		items = append(items, RateItem{
			ID:          uuid.New(),
			ItemName:    rec.ItemName,
			HSNCode:     rec.HSNCode,
			Weight:      rec.Weight,
			Rate:        rec.Rate,
			Currency:    currencyOr(rec.Currency, currency),
			Destination: rec.Destination,
			Country:     rec.Country,
			CountryCode: rec.CountryCode,
			ServiceType: rec.ServiceType,
		})
	}
	return items
}

// applyPatch sets every field present in p, including explicit empty strings.
func applyPatch(item RateItem, p ItemPatch, currency string) (RateItem, error) {
	if err := validateStruct(p); err != nil {
		return RateItem{}, err
	}
	if p.ItemName != nil {
		name := strings.TrimSpace(*p.ItemName)
		if name == "" {
			return RateItem{}, shared.Validation("Item name cannot be empty")
		}
		item.ItemName = name
	}
	if p.Rate != nil {
		if !p.Rate.Valid || p.Rate.Value < 0 {
			return RateItem{}, errInvalidRate
		}
		item.Rate = ingest.Round(p.Rate.Value)
	}
	setString(&item.HSNCode, p.HSNCode)
	setString(&item.Weight, p.Weight)
	setString(&item.Destination, p.Destination)
	setString(&item.Country, p.Country)
	setString(&item.CountryCode, p.CountryCode)
	setString(&item.ServiceType, p.ServiceType)
	if p.Currency != nil {
		item.Currency = currencyOr(*p.Currency, currency)
	}
	if p.AdditionalInfo != nil {
		item.AdditionalInfo = p.AdditionalInfo
	}
	return item, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func currencyOr(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code != "" {
		return code
	}
	if fallback != "" {
		return fallback
	}
	return DefaultCurrency
}

func sheetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.Validation("Sheet name is required")
	}
	return name, nil
}

// vendorIDs trims the submitted ids, dropping blanks and repeats. A nil input
// stays nil.
func vendorIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
