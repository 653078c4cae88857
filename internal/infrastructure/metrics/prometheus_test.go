package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.EventInterpreted("test_submission", "ok", 3*time.Millisecond)
	m.EventInterpreted("test_submission", "ok", 5*time.Millisecond)
	m.EventInterpreted("page_view", "ignored", time.Millisecond)
	m.SignalFired("frustration")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("test_submission", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("page_view", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalsTotal.WithLabelValues("frustration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMisses))

	hist := family(t, m, "behavior_interpreter_event_duration_seconds")
	var samples uint64
	for _, metric := range hist.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), samples)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventInterpreted("x", "ok", time.Second)
		m.SignalFired("confusion")
		m.CacheLookup(true)
		m.BreakerStateChanged("profile-store", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	})
}

func TestMetrics_BreakerState(t *testing.T) {
	m := New()
	m.BreakerStateChanged("profile-store", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("profile-store")))
}

func TestMetrics_WrapHandlerAndExposition(t *testing.T) {
	m := New()
	h := m.WrapHandler("log", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/behavior/log", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("log", "202")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "behavior_interpreter_http_requests_total"))
}
