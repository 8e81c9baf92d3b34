package models

import "time"

// UsageSnapshot is one timestamped reading of an account's cumulative usage
// counter. Snapshots are append-only; they are deleted in bulk once a nightly
// report has consumed them.
type UsageSnapshot struct {
	ID        int64
	AccountID int64 // accounts_registry internal id
	UsageGB   float64
	TakenAt   time.Time // UTC
}

// RegisteredAccount is one row of the local account registry: a panel UUID
// claimed by a chat-level owner.
type RegisteredAccount struct {
	ID        int64
	OwnerID   int64 // chat id of the owner
	UUID      string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}
