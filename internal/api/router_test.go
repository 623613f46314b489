package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/storepulse/internal/api"
	mw "github.com/kiranshivaraju/storepulse/internal/api/middleware"
	"github.com/kiranshivaraju/storepulse/internal/apikey"
	"github.com/kiranshivaraju/storepulse/internal/cache/cachetest"
	"github.com/kiranshivaraju/storepulse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- router tests ---

func newTestRouter(t *testing.T) (http.Handler, *storetest.MemStore) {
	t.Helper()
	st := storetest.New()
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(cachetest.New(), 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	}), st
}

func seedKey(t *testing.T, st *storetest.MemStore, scopes ...string) string {
	t.Helper()
	raw, key, err := apikey.Generate("router-test", scopes)
	require.NoError(t, err)
	require.NoError(t, st.CreateAPIKey(context.Background(), key))
	return raw
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/reports/jobs"},
		{"GET", "/api/v1/reports/jobs"},
		{"GET", "/api/v1/reports/jobs/list"},
		{"GET", "/api/v1/snapshots/latest"},
		{"POST", "/api/v1/feedback"},
		{"POST", "/api/v1/worker/run"},
		{"POST", "/api/v1/admin/actions"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ScopeGates(t *testing.T) {
	router, st := newTestRouter(t)
	readKey := seedKey(t, st, "read")
	workerKey := seedKey(t, st, "worker")

	cases := []struct {
		name   string
		key    string
		method string
		path   string
		want   int
	}{
		{"read can poll", readKey, "GET", "/api/v1/reports/jobs", http.StatusNotImplemented},
		{"read cannot enqueue", readKey, "POST", "/api/v1/reports/jobs", http.StatusForbidden},
		{"read cannot run worker", readKey, "POST", "/api/v1/worker/run", http.StatusForbidden},
		{"worker can run worker", workerKey, "POST", "/api/v1/worker/run", http.StatusNotImplemented},
		{"worker cannot cancel", workerKey, "POST", "/api/v1/admin/actions", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+tc.key)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
