package models

import "time"

// Reminder lifecycle states. Completed and deleted are terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusDeleted   = "deleted"
)

type Reminder struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Task           string    `json:"task"`
	TriggerAt      time.Time `json:"trigger_at"` // always UTC
	IsRecurring    bool      `json:"is_recurring"`
	RecurrenceRule string    `json:"recurrence_rule"` // "daily", "weekly", "monthly", or free-form; empty = one-shot
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *Reminder) IsPending() bool {
	return r.Status == StatusPending
}
