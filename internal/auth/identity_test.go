package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequireOwner(t *testing.T) {
	var got Owner
	var found bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := NewIdentityMiddleware(zap.NewNop()).RequireOwner()(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, " user-1 ")
	req.Header.Set(HeaderUserEmail, "ada@example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, found)
	assert.Equal(t, Owner{ID: "user-1", Email: "ada@example.com"}, got)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
