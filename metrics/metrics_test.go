package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/leave"
)

func TestRecorderCounters(t *testing.T) {
	c := New()

	c.RequestSubmitted("lt-annual")
	c.RequestSubmitted("lt-annual")
	c.RequestDecided(leave.StatusApproved)
	c.OperationFailed(leave.OpDecide, "insufficient_balance")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.submitted.WithLabelValues("lt-annual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("APPROVED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.decisions.WithLabelValues("REJECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("decide", "insufficient_balance")))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	c := New()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Put("/requests/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/requests/"+id+"/status", nil))
		require.Equal(t, http.StatusConflict, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("PUT", "/requests/{id}/status", "409")))
}

func TestHandler_ExposesLeaveMetrics(t *testing.T) {
	c := New()
	c.RequestSubmitted("lt-sick")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `leave_requests_submitted_total{leave_type="lt-sick"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
