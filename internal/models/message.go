package models

import "time"

// Job types owning editable periodic messages.
const (
	JobTypeOnlineReport = "online_report"
)

// ScheduledMessage records the one live, editable status message a job
// currently owns for a destination chat. Unique per (job_type, chat_id).
type ScheduledMessage struct {
	ID        int64
	JobType   string
	ChatID    int64
	MessageID int
	CreatedAt time.Time
}
