package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/wallet/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/wallet/verify/{reference}", "202"))
	for _, ref := range []string{"WAL-1", "WAL-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wallet/verify/"+ref, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/wallet/verify/{reference}", "202"))
	assert.Equal(t, 2.0, after-before)

	unmatched := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, unmatched+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestIncReconciliation(t *testing.T) {
	c := reconciliationsTotal.WithLabelValues("webhook", OutcomeDuplicate)
	before := testutil.ToFloat64(c)
	IncReconciliation("webhook", OutcomeDuplicate)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
