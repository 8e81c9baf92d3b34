package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
	"github.com/bandwatch/bandwatch/internal/panel"
	"github.com/bandwatch/bandwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, apiKeys []string) (*Server, *store.SQLiteStore) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/admin/user/":
			w.Write([]byte(`[{"uuid": "u1", "name": "alice", "is_active": true, "current_usage_GB": 5, "usage_limit_GB": 50}]`))
		case "/api/v2/admin/user/u1/":
			if r.Method == http.MethodPatch {
				w.Write([]byte(`{}`))
				return
			}
			w.Write([]byte(`{"uuid": "u1", "name": "alice", "is_active": true, "current_usage_GB": 5, "usage_limit_GB": 50}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	logger := logging.NewLogger(logging.WithLevel(logging.LevelError))
	m := metrics.NewMetrics("bandwatch_test")
	client := panel.NewClient(config.PanelConfig{
		BaseURL:      upstream.URL,
		APIKeyHeader: "Panel-API-Key",
		Timeout:      5 * time.Second,
		CacheTTL:     time.Minute,
		Timezone:     "Asia/Tehran",
	}, logger, m)

	loc, err := time.LoadLocation("Asia/Tehran")
	require.NoError(t, err)
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), loc)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	server := NewServer(
		config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0},
		config.APIConfig{Enabled: true, Auth: config.AuthConfig{APIKeys: apiKeys, HeaderName: "X-API-Key"}},
		client, st, m, logger,
	)
	return server, st
}

func doRequest(server *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpointNeedsNoAuth(t *testing.T) {
	server, _ := newTestServer(t, []string{"key1"})

	rec := doRequest(server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t, []string{"key1"})

	rec := doRequest(server, http.MethodGet, "/api/v1/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/accounts", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/accounts", map[string]string{"X-API-Key": "key1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBypassedWithoutKeys(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodGet, "/api/v1/accounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetAccount(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodGet, "/api/v1/accounts/u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/accounts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountUsage(t *testing.T) {
	server, st := newTestServer(t, nil)

	require.NoError(t, st.UpsertOwner(100, "alice", "Alice", ""))
	id, err := st.RegisterAccount(100, "u1", "alice")
	require.NoError(t, err)

	since := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, st.AddSnapshot(id, 10, since))
	require.NoError(t, st.AddSnapshot(id, 14, since.Add(time.Hour)))

	rec := doRequest(server, http.MethodGet, "/api/v1/accounts/u1/usage?hours=3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Window  string  `json:"window"`
		UsageGB float64 `json:"usage_gb"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "last_3h", body.Window)
	assert.Equal(t, 4.0, body.UsageGB)

	rec = doRequest(server, http.MethodGet, "/api/v1/accounts/u1/usage?hours=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/accounts/unregistered/usage", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetUsage(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodPost, "/api/v1/accounts/u1/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server, http.MethodPost, "/api/v1/accounts/missing/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
