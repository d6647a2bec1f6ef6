package models

import "time"

// Event records one firing of a reminder. Rows are append-only: an event
// exists if and only if a delivery was dispatched for that instant.
type Event struct {
	ID         int64     `json:"id"`
	ReminderID int64     `json:"reminder_id"`
	FiredAt    time.Time `json:"fired_at_utc"`
}
