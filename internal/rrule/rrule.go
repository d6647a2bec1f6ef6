// Package rrule renders recurrence values as user-facing text.
//
// Symbolic rules (daily/weekly/monthly) get fixed wording; free-form
// RFC 5545 RRULE strings are parsed with teambition/rrule-go. Free-form
// rules are display-only: the scheduling engine treats them as one-shot.
package rrule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"remindbot/internal/recurrence"
)

var weekdayNames = map[rrule.Weekday]string{
	rrule.MO: "Monday",
	rrule.TU: "Tuesday",
	rrule.WE: "Wednesday",
	rrule.TH: "Thursday",
	rrule.FR: "Friday",
	rrule.SA: "Saturday",
	rrule.SU: "Sunday",
}

var freqNames = map[rrule.Frequency]string{
	rrule.YEARLY:  "year",
	rrule.MONTHLY: "month",
	rrule.WEEKLY:  "week",
	rrule.DAILY:   "day",
	rrule.HOURLY:  "hour",
}

// IsRRule reports whether the value looks like an RFC 5545 rule rather
// than one of the symbolic rules.
func IsRRule(rule string) bool {
	return strings.Contains(strings.ToUpper(rule), "FREQ=")
}

// Describe returns a short human-readable description of a recurrence
// value, or "" when the value does not describe recurrence at all.
func Describe(rule string) string {
	switch recurrence.Normalize(rule) {
	case "":
		return ""
	case recurrence.Daily:
		return "every day"
	case recurrence.Weekly:
		return "every week"
	case recurrence.Monthly:
		return "every 30 days"
	}

	if !IsRRule(rule) {
		return ""
	}

	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		// Unparseable rules are still stored verbatim; show them as-is.
		return rule
	}
	return describeOption(opt)
}

func describeOption(opt *rrule.ROption) string {
	var b strings.Builder

	unit, ok := freqNames[opt.Freq]
	if !ok {
		unit = "occurrence"
	}
	if opt.Interval > 1 {
		fmt.Fprintf(&b, "every %d %ss", opt.Interval, unit)
	} else {
		b.WriteString("every " + unit)
	}

	if len(opt.Byweekday) > 0 {
		var days []string
		for _, wd := range opt.Byweekday {
			if name, ok := weekdayNames[wd]; ok {
				days = append(days, name)
			}
		}
		if len(days) > 0 {
			b.WriteString(" on " + strings.Join(days, ", "))
		}
	}

	if len(opt.Byhour) == 1 {
		fmt.Fprintf(&b, " at %02d:00", opt.Byhour[0])
	}

	if opt.Count > 0 {
		fmt.Fprintf(&b, ", %d times", opt.Count)
	}
	if !opt.Until.IsZero() {
		fmt.Fprintf(&b, ", until %s", opt.Until.UTC().Format("2006-01-02"))
	}

	return b.String()
}

// Validate parses a free-form rule so intake can reject garbage early.
// Symbolic rules are always valid.
func Validate(rule string, dtstart time.Time) error {
	if recurrence.Known(rule) || strings.TrimSpace(rule) == "" {
		return nil
	}
	if !IsRRule(rule) {
		return fmt.Errorf("unrecognized recurrence %q", rule)
	}
	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return fmt.Errorf("parse rrule: %w", err)
	}
	opt.Dtstart = dtstart
	if _, err := rrule.NewRRule(*opt); err != nil {
		return fmt.Errorf("build rrule: %w", err)
	}
	return nil
}
