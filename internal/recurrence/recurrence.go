package recurrence

import (
	"strings"
	"time"
)

// Supported symbolic rules. Anything else (including RFC 5545 RRULE
// strings) has no computable next occurrence and terminates the schedule
// after its first firing.
const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// Monthly is a fixed 30-day step, not calendar-month arithmetic.
// The approximation is intentional and documented user-facing behavior.
const monthStep = 30 * 24 * time.Hour

// Next returns the trigger instant that follows last under rule.
// ok is false when the rule yields no further occurrences; the caller
// must then complete the reminder.
//
// The next instant is always derived from the previous stored instant,
// never from the wall clock, so delivery delay does not accumulate drift.
func Next(last time.Time, rule string) (next time.Time, ok bool) {
	switch Normalize(rule) {
	case Daily:
		return last.Add(24 * time.Hour), true
	case Weekly:
		return last.Add(7 * 24 * time.Hour), true
	case Monthly:
		return last.Add(monthStep), true
	default:
		return time.Time{}, false
	}
}

// Known reports whether rule is one of the symbolic rules the calculator
// can advance.
func Known(rule string) bool {
	_, ok := Next(time.Time{}, rule)
	return ok
}

// Normalize maps user/model-provided spellings onto the symbolic set.
// Unrecognized input is returned trimmed, not rejected: free-form rules
// are stored verbatim and simply never advance.
func Normalize(rule string) string {
	return strings.ToLower(strings.TrimSpace(rule))
}
