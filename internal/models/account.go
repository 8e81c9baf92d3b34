package models

import "time"

// Account is a normalized account record as reported by the remote panel.
// It is rebuilt on every cache refresh and never persisted beyond the
// panel client's TTL cache.
type Account struct {
	UUID           string
	Name           string
	IsActive       bool
	LastOnline     *time.Time // UTC; nil when the panel reported the zero-date sentinel
	UsageLimitGB   float64
	CurrentUsageGB float64
	RemainingGB    float64
	UsagePercent   float64
	// ExpireInDays is the number of civil days until the account expires.
	// Negative means already expired, nil means unlimited (no package days).
	ExpireInDays *int
	Mode         string
}

// Expiring reports whether the account expires within the given number of
// civil days. Unlimited and already-expired accounts are excluded.
func (a *Account) Expiring(withinDays int) bool {
	if a.ExpireInDays == nil {
		return false
	}
	return *a.ExpireInDays >= 0 && *a.ExpireInDays <= withinDays
}

// OnlineSince reports whether the account was seen online at or after the
// given instant.
func (a *Account) OnlineSince(t time.Time) bool {
	if !a.IsActive || a.LastOnline == nil {
		return false
	}
	return !a.LastOnline.Before(t)
}
