package internal

import (
	"net/http"
	"net/http/httptest"
	"pvz/internal/controllers"
	"pvz/internal/structures"
	"pvz/internal/testutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux() *http.ServeMux {
	sc := controllers.NewScanController(&structures.Config{}, &testutil.MockLogger{}, &testutil.MockScanService{}, testutil.NewMockCache())
	mux := http.NewServeMux()
	for _, r := range InitRoutes(sc).GetRoutes() {
		mux.Handle(r.Url, r.Handler)
	}
	return mux
}

func TestInitRoutes_RegistersRoutes(t *testing.T) {
	sc := controllers.NewScanController(&structures.Config{}, &testutil.MockLogger{}, &testutil.MockScanService{}, testutil.NewMockCache())

	routes := InitRoutes(sc).GetRoutes()
	require.Len(t, routes, 5)

	urls := make([]string, len(routes))
	for i, r := range routes {
		urls[i] = r.Url
	}

	assert.Contains(t, urls, "/scan")
	assert.Contains(t, urls, "/scan/cancel")
	assert.Contains(t, urls, "/report")
	assert.Contains(t, urls, "/queue")
	assert.Contains(t, urls, "/reports")
}

func TestInitRoutes_MethodEnforcement(t *testing.T) {
	mux := newTestMux()

	cases := []struct {
		method, url string
		code        int
	}{
		{http.MethodPost, "/report", http.StatusMethodNotAllowed},
		{http.MethodPost, "/queue", http.StatusMethodNotAllowed},
		{http.MethodGet, "/scan/cancel", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/scan", http.StatusMethodNotAllowed},
		{http.MethodGet, "/scan", http.StatusOK},
		{http.MethodGet, "/reports", http.StatusOK},
		{http.MethodGet, "/report", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.url, nil))
		assert.Equal(t, tc.code, rr.Code, "%s %s", tc.method, tc.url)
	}
}

func TestInitRoutes_StartScan(t *testing.T) {
	mux := newTestMux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
