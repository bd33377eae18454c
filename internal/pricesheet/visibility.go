package pricesheet

// VisibleTo reports whether vendorID may see the sheet. An empty vendorID
// applies no vendor restriction.
func (s PriceSheet) VisibleTo(vendorID string) bool {
	if vendorID == "" || len(s.AssignedVendors) == 0 {
		return true
	}
	for _, ref := range s.AssignedVendors {
		if ref.ID == vendorID {
			return true
		}
	}
	return false
}

// Matches applies every ListFilter condition except paging.
func (f ListFilter) Matches(s PriceSheet) bool {
	if f.IsActive != nil && s.IsActive != *f.IsActive {
		return false
	}
	if f.IsDefault != nil && s.IsDefault != *f.IsDefault {
		return false
	}
	return s.VisibleTo(f.VendorID)
}

// PickActive chooses the sheet served to a vendor: the default sheet when one
// is among the candidates, otherwise the most recently created. Inactive
// sheets are never picked.
func PickActive(candidates []PriceSheet) (PriceSheet, bool) {
	var (
		best  PriceSheet
		found bool
	)
	for _, s := range candidates {
		if !s.IsActive {
			continue
		}
		switch {
		case !found:
			best, found = s, true
		case s.IsDefault && !best.IsDefault:
			best = s
		case s.IsDefault == best.IsDefault && s.CreatedAt.After(best.CreatedAt):
			best = s
		}
	}
	return best, found
}
