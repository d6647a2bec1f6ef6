package models

import "time"

// User reactions to a fired event. Multiple responses per event are
// allowed; the latest one governs.
const (
	ResponseDid     = "did"
	ResponseDidnt   = "didnt"
	ResponseSnoozed = "snoozed"
)

type Response struct {
	ID          int64     `json:"id"`
	EventID     *int64    `json:"event_id"` // nullable for legacy rows only
	UserID      int64     `json:"user_id"`
	Response    string    `json:"response"`
	RespondedAt time.Time `json:"responded_at_utc"`
}
