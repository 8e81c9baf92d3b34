package panel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/models"
)

// rawAccount mirrors the heterogeneous account shape the panel returns.
// Numeric fields arrive as numbers or strings depending on panel version,
// so they are decoded loosely and coerced.
type rawAccount struct {
	UUID           string      `json:"uuid"`
	Name           string      `json:"name"`
	IsActive       *bool       `json:"is_active"`
	Enable         *bool       `json:"enable"`
	UsageLimitGB   interface{} `json:"usage_limit_GB"`
	CurrentUsageGB interface{} `json:"current_usage_GB"`
	LastOnline     string      `json:"last_online"`
	StartDate      string      `json:"start_date"`
	PackageDays    *int        `json:"package_days"`
	Mode           string      `json:"mode"`
}

// zeroDatePrefix is the panel's sentinel for "never" timestamps.
const zeroDatePrefix = "0001-01-01"

// normalize converts a raw panel record into a closed Account. now must be
// the current instant in the civil timezone; it anchors expiry derivation.
func (c *Client) normalize(raw rawAccount, now time.Time) (*models.Account, error) {
	if raw.UUID == "" {
		return nil, &errors.ErrMalformedRecord{UUID: raw.UUID, Err: fmt.Errorf("missing uuid")}
	}

	name := raw.Name
	if name == "" {
		name = "unknown"
	}

	active := false
	if raw.IsActive != nil {
		active = *raw.IsActive
	} else if raw.Enable != nil {
		active = *raw.Enable
	}

	limit := coerceFloat(raw.UsageLimitGB)
	usage := coerceFloat(raw.CurrentUsageGB)

	remaining := limit - usage
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if limit > 0 {
		percent = usage / limit * 100
	}

	mode := raw.Mode
	if mode == "" {
		mode = "no_reset"
	}

	return &models.Account{
		UUID:           raw.UUID,
		Name:           name,
		IsActive:       active,
		LastOnline:     c.parsePanelTime(raw.LastOnline),
		UsageLimitGB:   limit,
		CurrentUsageGB: usage,
		RemainingGB:    remaining,
		UsagePercent:   percent,
		ExpireInDays:   remainingDays(raw.StartDate, raw.PackageDays, now),
		Mode:           mode,
	}, nil
}

// coerceFloat parses usage fields defensively: non-numeric or absent values
// become 0, never an error.
func coerceFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// parsePanelTime parses a panel timestamp. The panel writes naive local-time
// strings in the civil timezone; the result is converted to UTC. The zero-date
// sentinel and unparseable values map to nil.
func (c *Client) parsePanelTime(s string) *time.Time {
	if s == "" || strings.HasPrefix(s, zeroDatePrefix) {
		return nil
	}

	clean := strings.ReplaceAll(s, "T", " ")
	if i := strings.Index(clean, "."); i >= 0 {
		clean = clean[:i]
	}

	local, err := time.ParseInLocation("2006-01-02 15:04:05", clean, c.loc)
	if err != nil {
		return nil
	}
	utc := local.UTC()
	return &utc
}

// remainingDays derives the number of civil days until expiry. A nil or zero
// package length means the account is unlimited. A missing start date defaults
// to today in the civil timezone, so such accounts are not treated as already
// expired. Only civil dates participate, so the result changes by exactly one
// at each local midnight.
func remainingDays(startDate string, packageDays *int, now time.Time) *int {
	if packageDays == nil || *packageDays == 0 {
		return nil
	}

	today := civilDate(now)

	start := today
	if startDate != "" {
		datePart := startDate
		if i := strings.Index(datePart, "T"); i >= 0 {
			datePart = datePart[:i]
		}
		if parsed, err := time.ParseInLocation("2006-01-02", datePart, now.Location()); err == nil {
			start = parsed
		}
	}

	expiry := start.AddDate(0, 0, *packageDays)
	days := daysBetween(today, expiry)
	return &days
}

// civilDate truncates an instant to its civil date (midnight, same location).
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts whole civil days from one date to another. Both dates
// are rebuilt as UTC midnights first so a daylight-saving transition inside
// the span cannot shorten or stretch the count.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}
