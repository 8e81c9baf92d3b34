package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServerClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.PanelConfig{
		BaseURL:      server.URL,
		APIKey:       "secret",
		APIKeyHeader: "Panel-API-Key",
		Timeout:      5 * time.Second,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
		CacheTTL:     60 * time.Second,
		Timezone:     "Asia/Tehran",
	}
	return NewClient(cfg, logging.NewLogger(logging.WithLevel(logging.LevelError)), nil), server
}

func TestFetchAccountsCachesWithinTTL(t *testing.T) {
	var calls int64
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, "secret", r.Header.Get("Panel-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"uuid": "u1", "name": "alice", "is_active": true, "current_usage_GB": 5}]`))
	}))

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	now := base
	client.now = func() time.Time { return now }

	first, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "alice", first[0].Name)

	// Within the TTL the cached list is served.
	now = base.Add(30 * time.Second)
	second, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Past the TTL the list is refetched.
	now = base.Add(61 * time.Second)
	_, err = client.FetchAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestFetchAccountsDropsMalformedRecords(t *testing.T) {
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"uuid": "u1", "name": "alice"},
			{"name": "no-uuid"},
			{"uuid": "u2", "name": "bob", "current_usage_GB": "bogus"}
		]}`))
	}))

	accounts, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "u1", accounts[0].UUID)
	// Non-numeric usage coerces to zero rather than dropping the record.
	assert.Equal(t, 0.0, accounts[1].CurrentUsageGB)
}

func TestFetchAccountNotFound(t *testing.T) {
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchAccount(context.Background(), "missing")
	require.Error(t, err)
	var notFound *errors.ErrAccountNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.UUID)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int64
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	_, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestDoGivesUpAfterRetries(t *testing.T) {
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.FetchAccounts(context.Background())
	require.Error(t, err)
	var unavailable *errors.ErrUpstreamUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestModifyAccountInvalidatesCache(t *testing.T) {
	var listCalls int64
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPatch:
			w.Write([]byte(`{}`))
		default:
			atomic.AddInt64(&listCalls, 1)
			w.Write([]byte(`[{"uuid": "u1", "name": "alice"}]`))
		}
	}))

	_, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)

	limit := 100.0
	require.NoError(t, client.ModifyAccount(context.Background(), "u1", Patch{UsageLimitGB: &limit}))

	_, err = client.FetchAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&listCalls))
}

func TestOnlineAccounts(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		loc, _ := time.LoadLocation("Asia/Tehran")
		recent := now.Add(-time.Minute).In(loc).Format("2006-01-02 15:04:05")
		stale := now.Add(-time.Hour).In(loc).Format("2006-01-02 15:04:05")
		w.Write([]byte(`[
			{"uuid": "u1", "name": "recent", "is_active": true, "last_online": "` + recent + `"},
			{"uuid": "u2", "name": "stale", "is_active": true, "last_online": "` + stale + `"},
			{"uuid": "u3", "name": "inactive", "is_active": false, "last_online": "` + recent + `"}
		]`))
	}))
	client.now = func() time.Time { return now }

	online, err := client.OnlineAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "recent", online[0].Name)
}

func TestTopConsumers(t *testing.T) {
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"uuid": "u1", "name": "low", "current_usage_GB": 1},
			{"uuid": "u2", "name": "high", "current_usage_GB": 99},
			{"uuid": "u3", "name": "mid", "current_usage_GB": 50}
		]`))
	}))

	top, err := client.TopConsumers(context.Background())
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].Name)
	assert.Equal(t, "mid", top[1].Name)
	assert.Equal(t, "low", top[2].Name)
}

func TestAddUsageAndDaysRebasesExpired(t *testing.T) {
	var patched Patch
	client, _ := newTestServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPatch:
			require.NoError(t, jsonDecode(r, &patched))
			w.Write([]byte(`{}`))
		default:
			// Expired 10 days ago with a 5-day package.
			w.Write([]byte(`{"uuid": "u1", "name": "alice", "package_days": 5, "start_date": "2026-08-05"}`))
		}
	}))
	loc, _ := time.LoadLocation("Asia/Tehran")
	client.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, loc) }

	require.NoError(t, client.AddUsageAndDays(context.Background(), "u1", 10, 7))
	require.NotNil(t, patched.UsageLimitGB)
	assert.Equal(t, 10.0, *patched.UsageLimitGB)
	require.NotNil(t, patched.PackageDays)
	// Expired accounts rebase to zero before adding.
	assert.Equal(t, 7, *patched.PackageDays)
}

func jsonDecode(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
