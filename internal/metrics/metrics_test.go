package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsort/internal/metrics"
)

func TestRecordRun(t *testing.T) {
	m := metrics.New(nil)

	m.RecordRun("analyze", nil, time.Second)
	m.RecordRun("analyze", errors.New("boom"), time.Second)
	m.RecordRun("organize", nil, time.Second)

	assert.Equal(t, testutil.ToFloat64(m.RunsTotal.WithLabelValues("analyze", "success")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.RunsTotal.WithLabelValues("analyze", "error")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.RunsTotal.WithLabelValues("organize", "success")), 1.0)
}

func TestRecordClassifierRequest(t *testing.T) {
	m := metrics.New(nil)
	m.RecordClassifierRequest(nil, 10*time.Millisecond)
	m.RecordClassifierRequest(errors.New("x"), 10*time.Millisecond)

	assert.Equal(t, testutil.ToFloat64(m.ClassifierRequestsTotal.WithLabelValues("success")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.ClassifierRequestsTotal.WithLabelValues("error")), 1.0)
}

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.BookmarksFiled.Add(3)

	n, err := testutil.GatherAndCount(reg, "bmsort_bookmarks_filed_total")
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
}
