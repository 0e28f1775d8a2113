package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
	"github.com/brunobozic/poll-automation-sub004/internal/engine"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

type downAnalyzer struct{}

func (downAnalyzer) Analyze(context.Context, *analyzer.Request) (*analyzer.RawResponse, error) {
	return nil, analyzer.ErrUnavailable
}

func newTestServer(st store.Store, opts ...Option) *Server {
	return NewServer(engine.New(st, downAnalyzer{}), opts...)
}

func captureBody() []byte {
	return []byte(`{
		"registration_id": 1,
		"site_id": 42,
		"failure_type": "timeout",
		"severity_level": 3,
		"error_message": "Timeout 30000ms exceeded",
		"failed_selector": "#submit",
		"failed_action": "click",
		"page_url": "https://site.example/form?x=1",
		"step_number": 3
	}`)
}

func TestPostFailure(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/failures", bytes.NewReader(captureBody())))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sum engine.CycleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.NotZero(t, sum.ScenarioID)
	assert.NotZero(t, sum.AnalysisID)
	assert.Equal(t, "timing_issue", string(sum.Insights.RootCauseCategory))
	assert.True(t, sum.Insights.FallbackUsed)
	assert.NotEmpty(t, sum.RecommendationIDs)
	assert.Len(t, sum.TestIDs, 1+len(sum.RecommendationIDs))
}

func TestPostFailure_Deduplicates(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest("POST", "/api/failures", bytes.NewReader(captureBody())))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	body := bytes.Replace(captureBody(), []byte("?x=1"), []byte("?x=2"), 1)
	srv.ServeHTTP(second, httptest.NewRequest("POST", "/api/failures", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, second.Code)

	var a, b engine.CycleSummary
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ScenarioID, b.ScenarioID)
	assert.True(t, b.Insights.Deduplicated)
	assert.Equal(t, 2, b.Insights.OccurrenceCount)
}

func TestPostFailure_BadRequests(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"unknown failure type", `{"failure_type":"weird","error_message":"x","page_url":"https://a"}`},
		{"no error content", `{"failure_type":"timeout","page_url":"https://a"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/failures", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestPostFailure_PersistenceFailure(t *testing.T) {
	st := store.NewMemStore()
	srv := newTestServer(st)
	st.FailNext = errors.New("disk full")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/failures", bytes.NewReader(captureBody())))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetDashboard(t *testing.T) {
	st := store.NewMemStore()
	srv := newTestServer(st)
	post := httptest.NewRecorder()
	srv.ServeHTTP(post, httptest.NewRequest("POST", "/api/failures", bytes.NewReader(captureBody())))
	require.Equal(t, http.StatusCreated, post.Code)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/dashboard?window=7d", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var d engine.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "168h0m0s", d.Window)
	assert.Len(t, d.RecentFailures, 1)
	assert.NotEmpty(t, d.TopFailureTypes)
	assert.NotEmpty(t, d.PendingRecommendations)
}

func TestGetDashboard_BadWindow(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	for _, raw := range []string{"yesterday", "-3d", "0h"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/dashboard?window="+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "window=%s", raw)
	}
}

func TestHealth(t *testing.T) {
	t.Run("no analyzer configured", func(t *testing.T) {
		srv := newTestServer(store.NewMemStore())
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var h healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "healthy", h.Status)
		assert.Equal(t, "not_configured", h.Analyzer)
		require.NotNil(t, h.Stats)
	})

	t.Run("analyzer down", func(t *testing.T) {
		check := func(context.Context) error { return analyzer.ErrUnavailable }
		srv := newTestServer(store.NewMemStore(), WithAnalyzerCheck(check))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var h healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "healthy", h.Status, "a down analyzer does not fail health")
		assert.Equal(t, "unavailable", h.Analyzer)
	})

	t.Run("analyzer up", func(t *testing.T) {
		check := func(context.Context) error { return nil }
		srv := newTestServer(store.NewMemStore(), WithAnalyzerCheck(check))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		var h healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "available", h.Analyzer)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(store.NewMemStore())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/failures", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
