package shared

import (
	"context"
	"net/http"
	"strings"
)

// VendorHeader carries the calling vendor account on public price-sheet reads.
const VendorHeader = "X-Vendor-ID"

type vendorContextKey struct{}

// ContextWithVendor stores the vendor identifier in context.
func ContextWithVendor(ctx context.Context, vendorID string) context.Context {
	return context.WithValue(ctx, vendorContextKey{}, vendorID)
}

// VendorFromContext extracts the vendor identifier from context.
func VendorFromContext(ctx context.Context) string {
	vendorID, _ := ctx.Value(vendorContextKey{}).(string)
	return vendorID
}

// VendorMiddleware copies the vendor header into the request context.
func VendorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if vendorID := strings.TrimSpace(r.Header.Get(VendorHeader)); vendorID != "" {
			r = r.WithContext(ContextWithVendor(r.Context(), vendorID))
		}
		next.ServeHTTP(w, r)
	})
}
