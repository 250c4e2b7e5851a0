package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *MetricsServer) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveOperation(t *testing.T) {
	m, err := New("capsule", "127.0.0.1:0")
	require.NoError(t, err)

	m.ObserveOperation("burn", nil, time.Millisecond)
	m.ObserveOperation("burn", interfaces.ErrCannotBurnListedItems, time.Millisecond)
	m.ObserveOperation("burn", errors.New("boom"), time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `capsule_ledger_operations_total{op="burn",result="ok"} 1`)
	assert.Contains(t, body, `capsule_ledger_operations_total{op="burn",result="CannotBurnListedItems"} 1`)
	assert.Contains(t, body, `capsule_ledger_operations_total{op="burn",result="Other"} 1`)
	assert.Contains(t, body, `capsule_ledger_operation_duration_seconds_count{op="burn"} 3`)
}

func TestObserveHTTP(t *testing.T) {
	m, err := New("capsule", "127.0.0.1:0")
	require.NoError(t, err)
	m.ObserveHTTP(http.MethodGet, "/api/items/{id}", http.StatusOK, time.Millisecond)

	assert.Contains(t, scrape(t, m), `capsule_http_requests_total{method="GET",route="/api/items/{id}",status="200"} 1`)
}
