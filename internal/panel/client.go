package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
	"github.com/bandwatch/bandwatch/internal/models"
)

// onlineWindow is how recently an account must have been seen to count as
// online.
const onlineWindow = 3 * time.Minute

// Client talks to the remote panel's admin API. The bulk account list is
// memoized for a short TTL so that multiple consumers within one scheduler
// tick share a single upstream call.
type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
	retryCount   int
	retryBackoff time.Duration
	ttl          time.Duration
	loc          *time.Location
	logger       *logging.Logger
	metrics      *metrics.Metrics

	mu        sync.Mutex
	cached    []models.Account
	fetchedAt time.Time

	now func() time.Time
}

// Patch is a partial account update accepted by the panel's write endpoint.
// Nil fields are left untouched.
type Patch struct {
	UsageLimitGB   *float64 `json:"usage_limit_GB,omitempty"`
	PackageDays    *int     `json:"package_days,omitempty"`
	CurrentUsageGB *float64 `json:"current_usage_GB,omitempty"`
}

// NewClient creates a panel client from configuration.
func NewClient(cfg config.PanelConfig, logger *logging.Logger, m *metrics.Metrics) *Client {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if adminPath := strings.Trim(cfg.AdminPath, "/"); adminPath != "" {
		base = base + "/" + adminPath
	}

	return &Client{
		baseURL:      base + "/api/v2/admin",
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		httpClient:   newHTTPClient(cfg.Timeout),
		retryCount:   cfg.RetryCount,
		retryBackoff: cfg.RetryBackoff,
		ttl:          cfg.CacheTTL,
		loc:          loc,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// SetNow overrides the client's clock. Tests use it to pin the cache TTL
// and online cutoffs.
func (c *Client) SetNow(now func() time.Time) {
	c.now = now
}

// Location returns the civil timezone the client normalizes timestamps from.
func (c *Client) Location() *time.Location {
	return c.loc
}

// TestConnection verifies the panel is reachable and the key is accepted.
func (c *Client) TestConnection(ctx context.Context) error {
	var out json.RawMessage
	return c.do(ctx, http.MethodGet, "/user/", nil, &out)
}

// FetchAccounts returns the full normalized account list. Results are cached
// for the configured TTL; a transport failure after the cache has expired
// returns ErrUpstreamUnavailable and no data.
func (c *Client) FetchAccounts(ctx context.Context) ([]models.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return append([]models.Account(nil), c.cached...), nil
	}

	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user/", nil, &out); err != nil {
		return nil, err
	}

	raws, err := decodeAccountList(out)
	if err != nil {
		return nil, &errors.ErrUpstreamUnavailable{Endpoint: "/user/", Err: err}
	}

	nowCivil := c.now().In(c.loc)
	accounts := make([]models.Account, 0, len(raws))
	for _, raw := range raws {
		acc, err := c.normalize(raw, nowCivil)
		if err != nil {
			// One bad record never aborts the batch.
			c.logger.Warn("dropping malformed account record", "uuid", raw.UUID, "error", err.Error())
			continue
		}
		accounts = append(accounts, *acc)
	}

	c.cached = accounts
	c.fetchedAt = c.now()

	return append([]models.Account(nil), accounts...), nil
}

// FetchAccount fetches one account by UUID, bypassing the list cache.
func (c *Client) FetchAccount(ctx context.Context, uuid string) (*models.Account, error) {
	var raw rawAccount
	if err := c.do(ctx, http.MethodGet, "/user/"+uuid+"/", nil, &raw); err != nil {
		return nil, err
	}
	return c.normalize(raw, c.now().In(c.loc))
}

// ModifyAccount applies a partial update to the account on the panel and
// invalidates the list cache.
func (c *Client) ModifyAccount(ctx context.Context, uuid string, patch Patch) error {
	if err := c.do(ctx, http.MethodPatch, "/user/"+uuid+"/", patch, nil); err != nil {
		return err
	}
	c.InvalidateCache()
	return nil
}

// AddUsageAndDays raises an account's quota and validity relative to its
// current values. An already-expired account gets its day count rebased to
// zero so the added days count from today.
func (c *Client) AddUsageAndDays(ctx context.Context, uuid string, addGB float64, addDays int) error {
	if addGB == 0 && addDays == 0 {
		return nil
	}

	current, err := c.FetchAccount(ctx, uuid)
	if err != nil {
		return err
	}

	var patch Patch
	if addGB != 0 {
		limit := current.UsageLimitGB + addGB
		patch.UsageLimitGB = &limit
	}
	if addDays != 0 {
		base := 0
		if current.ExpireInDays != nil && *current.ExpireInDays > 0 {
			base = *current.ExpireInDays
		}
		days := base + addDays
		patch.PackageDays = &days
	}

	return c.ModifyAccount(ctx, uuid, patch)
}

// ResetUsage zeroes an account's cumulative usage counter on the panel.
func (c *Client) ResetUsage(ctx context.Context, uuid string) error {
	zero := 0.0
	return c.ModifyAccount(ctx, uuid, Patch{CurrentUsageGB: &zero})
}

// OnlineAccounts returns active accounts seen online within the last few
// minutes.
func (c *Client) OnlineAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := c.FetchAccounts(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().UTC().Add(-onlineWindow)
	online := accounts[:0:0]
	for _, acc := range accounts {
		if acc.OnlineSince(cutoff) {
			online = append(online, acc)
		}
	}
	return online, nil
}

// ActiveAccounts returns accounts seen online within the last N days.
func (c *Client) ActiveAccounts(ctx context.Context, days int) ([]models.Account, error) {
	accounts, err := c.FetchAccounts(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().UTC().AddDate(0, 0, -days)
	var active []models.Account
	for _, acc := range accounts {
		if acc.LastOnline != nil && !acc.LastOnline.Before(cutoff) {
			active = append(active, acc)
		}
	}
	return active, nil
}

// InactiveAccounts returns accounts whose last-seen falls in the given day
// range. minDays of -1 selects accounts that were never seen online.
func (c *Client) InactiveAccounts(ctx context.Context, minDays, maxDays int) ([]models.Account, error) {
	accounts, err := c.FetchAccounts(ctx)
	if err != nil {
		return nil, err
	}

	nowUTC := c.now().UTC()
	var inactive []models.Account
	for _, acc := range accounts {
		if minDays == -1 && acc.LastOnline == nil {
			inactive = append(inactive, acc)
			continue
		}
		if acc.LastOnline == nil {
			continue
		}
		daysSince := int(nowUTC.Sub(*acc.LastOnline).Hours() / 24)
		if daysSince >= minDays && daysSince < maxDays {
			inactive = append(inactive, acc)
		}
	}
	return inactive, nil
}

// TopConsumers returns all accounts sorted by current usage, highest first.
func (c *Client) TopConsumers(ctx context.Context) ([]models.Account, error) {
	accounts, err := c.FetchAccounts(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].CurrentUsageGB > accounts[j].CurrentUsageGB
	})
	return accounts, nil
}

// InvalidateCache drops the memoized account list so the next fetch goes
// upstream.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.fetchedAt = time.Time{}
}

// do performs one API request with bounded retries and backoff. 404 maps to
// ErrAccountNotFound; transport errors and 5xx map to ErrUpstreamUnavailable.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &errors.ErrUpstreamUnavailable{Endpoint: path, Err: ctx.Err()}
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set(c.apiKeyHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.metrics.RecordPanelRequest(path, "error")
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			c.metrics.RecordPanelRequest(path, "not_found")
			return &errors.ErrAccountNotFound{UUID: strings.Trim(strings.TrimPrefix(path, "/user/"), "/")}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("panel returned status %d", resp.StatusCode)
			c.metrics.RecordPanelRequest(path, "error")
			continue
		case resp.StatusCode >= 400:
			resp.Body.Close()
			c.metrics.RecordPanelRequest(path, "client_error")
			return &errors.ErrUpstreamUnavailable{Endpoint: path, Err: fmt.Errorf("panel returned status %d", resp.StatusCode)}
		}

		c.metrics.RecordPanelRequest(path, "success")

		if out == nil || resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			return nil
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return &errors.ErrUpstreamUnavailable{Endpoint: path, Err: err}
		}
		return nil
	}

	return &errors.ErrUpstreamUnavailable{Endpoint: path, Err: lastErr}
}

// decodeAccountList accepts both list shapes the panel is known to return:
// a bare array, or an object wrapping it under "results" or "users".
func decodeAccountList(data json.RawMessage) ([]rawAccount, error) {
	var list []rawAccount
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Results []rawAccount `json:"results"`
		Users   []rawAccount `json:"users"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected account list shape: %w", err)
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return wrapped.Users, nil
}
