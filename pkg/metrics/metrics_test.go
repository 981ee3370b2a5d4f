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

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DocIndexed(true)
		m.DocFailed()
		m.DocRemoved()
		m.BuildFinished(time.Second, 1, 1)
		m.Flushed(nil)
		m.StopWordsSelected(time.Millisecond)
		m.Query("bm25", "ok", time.Millisecond, 3)
		m.CacheHit()
		m.CacheMiss()
		m.SinkWrite("text", nil)
		m.RunFinished(nil)
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.DocIndexed(false)
	a.DocIndexed(true)
	a.DocIndexed(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DocsIndexedTotal.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.DocsIndexedTotal.WithLabelValues("update")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocsIndexedTotal.WithLabelValues("update")))
}

func TestOutcomeLabels(t *testing.T) {
	m := New()
	m.Query("bm25", "ok", time.Millisecond, 4)
	m.Query("tf", "zero_result", time.Millisecond, 0)
	m.Flushed(errors.New("disk full"))
	m.SinkWrite("sql", nil)
	m.RunFinished(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkWritesTotal.WithLabelValues("sql", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.CacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retrieval_cache_hits_total 1")
}
