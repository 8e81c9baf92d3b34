package models

import "time"

// Owner is a chat-level recipient of reports and warnings. Owners register
// panel account UUIDs and keep per-recipient delivery preferences.
type Owner struct {
	ChatID         int64
	Username       string
	FirstName      string
	LastName       string
	Birthday       *time.Time // date only, year ignored for matching
	DailyReports   bool
	ExpiryWarnings bool
}
