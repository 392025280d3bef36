package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ChunkSubmitted(t *testing.T) {
	m := New()

	m.ChunkSubmitted("period_totals", 20*time.Millisecond, nil)
	m.ChunkSubmitted("period_totals", time.Second, &core.NetworkError{Op: "submit chunk", Err: io.EOF})
	m.ChunkSubmitted("period_totals", time.Millisecond, errors.New("chunk rejected: bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunksTotal.WithLabelValues("period_totals", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunksTotal.WithLabelValues("period_totals", "network_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunksTotal.WithLabelValues("period_totals", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.chunkDuration))
}

func TestMetrics_ConflictResolved(t *testing.T) {
	m := New()

	m.ConflictResolved("period_totals", core.DecisionSkipOne, false)
	m.ConflictResolved("period_totals", core.DecisionSkipOne, true)
	m.ConflictResolved("period_totals", core.DecisionOverrideAll, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("period_totals", "skip-one", "backend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("period_totals", "skip-one", "intra_batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("period_totals", "override-all", "backend")))
}

func TestMetrics_JobFinished(t *testing.T) {
	m := New()

	m.JobFinished(core.ImportResult{
		DocType:  "period_totals",
		State:    core.StateCancelled,
		Total:    25,
		Success:  10,
		Failed:   []core.FailedRecord{{Row: 3, Reason: "db error"}},
		Duration: 2 * time.Second,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("period_totals", "cancelled")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("period_totals", "success")))
	assert.Equal(t, 14.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("period_totals", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("period_totals", "failed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterActiveJobs(func() float64 { return 2 }))
	m.ObserveRequest("/api/imports/{docType}", http.MethodPost, http.StatusAccepted, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bulkimport_job_active 2")
	assert.Contains(t, body, `bulkimport_http_requests_total{code="202",method="POST",route="/api/imports/{docType}"} 1`)
}
