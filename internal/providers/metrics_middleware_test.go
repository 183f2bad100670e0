package providers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockMetrics struct {
	requestEndpoint string
	requestStatus   int
	requestCalls    int
	durationCalls   int
}

func (m *mockMetrics) IncRequestsTotal(endpoint string, status int) {
	m.requestEndpoint = endpoint
	m.requestStatus = status
	m.requestCalls++
}
func (m *mockMetrics) ObserveRequestDuration(_ string, _ time.Duration) { m.durationCalls++ }
func (m *mockMetrics) IncCacheHits()                                    {}
func (m *mockMetrics) IncCacheMisses()                                  {}
func (m *mockMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (m *mockMetrics) IncRelayQueries(_, _ string)                      {}
func (m *mockMetrics) ObserveScanDuration(_ time.Duration)              {}
func (m *mockMetrics) SetZombiesTotal(_ string, _ int)                  {}
func (m *mockMetrics) SetReportsTotal(_ int)                            {}

type accessLogger struct {
	cacheTestLogger
	lines []TypeEnum
}

func (l *accessLogger) Debugf(t TypeEnum, _ string, _ ...interface{}) { l.lines = append(l.lines, t) }

func TestMetricsMiddleware_CapturesStatusAndEndpoint(t *testing.T) {
	metrics := &mockMetrics{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	mw := MetricsMiddleware(metrics, &cacheTestLogger{}, []string{"/scan"}, handler)

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, 1, metrics.requestCalls)
	assert.Equal(t, "/scan", metrics.requestEndpoint)
	assert.Equal(t, http.StatusAccepted, metrics.requestStatus)
	assert.Equal(t, 1, metrics.durationCalls)
}

func TestMetricsMiddleware_DefaultStatus200(t *testing.T) {
	metrics := &mockMetrics{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mw := MetricsMiddleware(metrics, &cacheTestLogger{}, []string{"/report"}, handler)

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, metrics.requestStatus)
}

func TestMetricsMiddleware_UnknownPathIsOther(t *testing.T) {
	metrics := &mockMetrics{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	mw := MetricsMiddleware(metrics, &cacheTestLogger{}, []string{"/report"}, handler)

	req := httptest.NewRequest(http.MethodGet, "/report/deadbeef", nil)
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, "other", metrics.requestEndpoint)
}

func TestMetricsMiddleware_WritesAccessLogByMethod(t *testing.T) {
	logger := &accessLogger{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := MetricsMiddleware(&mockMetrics{}, logger, nil, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/queue", nil))
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/scan", nil))

	assert.Equal(t, []TypeEnum{TypeGet, TypePost}, logger.lines)
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, sw.status)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, rr, sw.Unwrap())
}
