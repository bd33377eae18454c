package shared

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaginationClamps(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: DefaultPerPage, Total: 45, TotalPages: 3}, p)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 1000, 0)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 2*MaxPerPage, p.Offset())
}

func TestErrorsClassify(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFound("Price sheet %s not found", "x"))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Price sheet x not found", UserSafeMessage(err))

	err = NoValidItems("No valid items", []string{"row 2: rate must be positive"})
	assert.ErrorIs(t, err, ErrNoValidItems)
	assert.Equal(t, []string{"row 2: rate must be positive"}, Details(err))

	assert.Equal(t, "Something went wrong!", UserSafeMessage(errors.New("pq: connection reset")))
	assert.Nil(t, Details(errors.New("plain")))
}

func TestVendorMiddleware(t *testing.T) {
	var got string
	h := VendorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = VendorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(VendorHeader, "  vendor-7 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "vendor-7", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, got)
}
