package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifiersAllocated(t *testing.T) {
	m := New()
	m.IdentifiersAllocated(KindNonConformity, ModeBulk, 3)
	m.IdentifiersAllocated(KindNonConformity, ModeSingle, 1)
	m.IdentifiersAllocated(KindCorrectiveAction, ModeBulk, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.identifiers.WithLabelValues(KindNonConformity, ModeBulk)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identifiers.WithLabelValues(KindNonConformity, ModeSingle)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.identifiers.WithLabelValues(KindCorrectiveAction, ModeBulk)))
}

func TestStatusChanged(t *testing.T) {
	m := New()
	m.StatusChanged(false, true)
	m.StatusChanged(true, true)
	m.StatusChanged(true, false)
	m.StatusChanged(false, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.closures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reopenings))
}

func TestBackupOperation(t *testing.T) {
	m := New()
	m.BackupOperation("archive", nil)
	m.BackupOperation("archive", errors.New("bucket missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues("archive", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues("archive", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IdentifiersAllocated(KindNonConformity, ModeSingle, 1)
		m.AllocationFailed("invalid_date")
		m.StatusChanged(false, true)
		m.BackupOperation("export", nil)
		m.HTTPRequest(http.MethodGet, "GET /health", 200, time.Millisecond)
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodPost, "POST /api/nonconformities", http.StatusCreated, 5*time.Millisecond)
	m.AllocationFailed("duplicate_identifier")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `labqms_http_requests_total{method="POST",route="POST /api/nonconformities",status="201"} 1`)
	assert.Contains(t, body, `labqms_allocation_errors_total{reason="duplicate_identifier"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
