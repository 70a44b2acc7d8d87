package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_CountsByResult(t *testing.T) {
	m := New()

	m.Action("cancel", nil)
	m.Action("cancel", nil)
	m.Action("cancel", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrderActions.WithLabelValues("cancel", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderActions.WithLabelValues("cancel", "error")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := New()
	m.ReturnRequests.WithLabelValues("exchange").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `storefront_return_requests_total{type="exchange"} 1`))
}
