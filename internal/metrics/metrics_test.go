package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func TestCountersRecord(t *testing.T) {
	m := NewMetrics("test")

	m.RecordPanelRequest("/user/", "success")
	m.RecordPanelRequest("/user/", "success")
	m.RecordPanelRequest("/user/", "error")
	m.RecordJobRun("nightly_report", "success")
	m.RecordSnapshot()
	m.RecordPurge(5)
	m.RecordNotification("expiry_warning", "success")
	m.SetAccountsTracked(7)

	families := gather(t, m)

	panelFamily := families["test_panel_requests_total"]
	require.NotNil(t, panelFamily)
	require.Len(t, panelFamily.GetMetric(), 2)

	total := 0.0
	for _, metric := range panelFamily.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, total)

	purged := families["test_snapshots_purged_total"]
	require.NotNil(t, purged)
	assert.Equal(t, 5.0, purged.GetMetric()[0].GetCounter().GetValue())

	tracked := families["test_accounts_tracked"]
	require.NotNil(t, tracked)
	assert.Equal(t, 7.0, tracked.GetMetric()[0].GetGauge().GetValue())
}

func TestJobDurationHistogram(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveJobDuration("collect_snapshots", 0.2)
	m.ObserveJobDuration("collect_snapshots", 1.5)

	families := gather(t, m)
	family := families["test_job_duration_seconds"]
	require.NotNil(t, family)

	histogram := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 1.7, histogram.GetSampleSum(), 0.001)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordPanelRequest("/user/", "success")
		m.RecordJobRun("job", "success")
		m.ObserveJobDuration("job", 1)
		m.RecordSnapshot()
		m.RecordPurge(1)
		m.RecordNotification("kind", "success")
		m.SetAccountsTracked(1)
	})
}

func TestHandlerServesExposition(t *testing.T) {
	m := NewMetrics("test")
	m.RecordSnapshot()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_snapshots_recorded_total 1")
}
